package connector

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	binanceFuturesURL        = "https://fapi.binance.com"
	binanceFuturesTestnetURL = "https://testnet.binancefuture.com"
	binanceWeightHeader      = "X-MBX-USED-WEIGHT-1M"
)

// Binance is a thin USDT-M futures client. Credentials arrive per call so one
// client serves every account on the venue.
type Binance struct {
	client  *resty.Client
	limiter *WeightLimiter
}

// NewBinance creates the live Binance connector.
func NewBinance(testnet bool) *Binance {
	base := binanceFuturesURL
	if testnet {
		base = binanceFuturesTestnetURL
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Binance{
		client:  client,
		limiter: NewWeightLimiter(2400, time.Minute),
	}
}

func (b *Binance) Name() string { return "binance" }

func sign(secret string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Binance) signedCall(ctx context.Context, method, endpoint string, params url.Values, creds Credentials, out any) error {
	if b.limiter.ShouldDelay() {
		time.Sleep(time.Second)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	query += "&signature=" + sign(creds.APISecret, query)

	req := b.client.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", creds.APIKey)

	var (
		resp *resty.Response
		err  error
	)
	path := endpoint + "?" + query
	switch method {
	case "GET":
		resp, err = req.Get(path)
	case "POST":
		resp, err = req.Post(path)
	case "DELETE":
		resp, err = req.Delete(path)
	default:
		return fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return fmt.Errorf("binance %s %s: %w", method, endpoint, err)
	}

	b.limiter.UpdateFromHeader(resp.Header().Get(binanceWeightHeader))

	if resp.StatusCode() >= 400 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(resp.Body(), &apiErr)
		return fmt.Errorf("binance %s: code=%d msg=%s", endpoint, apiErr.Code, apiErr.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("binance decode %s: %w", endpoint, err)
		}
	}
	return nil
}

// ValidateKeys performs a signed balance call to prove the key pair works.
func (b *Binance) ValidateKeys(ctx context.Context, creds Credentials) error {
	_, err := b.GetBalance(ctx, creds)
	return err
}

// GetBalance returns the USDT futures wallet balance.
func (b *Binance) GetBalance(ctx context.Context, creds Credentials) (Balance, error) {
	var rows []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := b.signedCall(ctx, "GET", "/fapi/v2/balance", nil, creds, &rows); err != nil {
		return Balance{}, err
	}
	for _, r := range rows {
		if r.Asset == "USDT" {
			total, _ := strconv.ParseFloat(r.Balance, 64)
			avail, _ := strconv.ParseFloat(r.AvailableBalance, 64)
			return Balance{Available: avail, Total: total}, nil
		}
	}
	return Balance{}, fmt.Errorf("binance: no USDT balance row")
}

// PlaceOrder submits a futures order. The prices map is unused for live venues.
func (b *Binance) PlaceOrder(ctx context.Context, req OrderRequest, creds Credentials, prices map[string]float64) (PlacedOrder, error) {
	params := url.Values{}
	params.Set("symbol", normalizePair(req.Pair))
	params.Set("side", binanceSide(req.Side, req.ReduceOnly))
	params.Set("type", string(req.Type))
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if req.Type == TypeLimit {
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
		params.Set("timeInForce", "GTC")
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}

	var res struct {
		OrderID       int64  `json:"orderId"`
		Status        string `json:"status"`
		AvgPrice      string `json:"avgPrice"`
		ExecutedQty   string `json:"executedQty"`
		UpdateTimeRaw int64  `json:"updateTime"`
	}
	if err := b.signedCall(ctx, "POST", "/fapi/v1/order", params, creds, &res); err != nil {
		return PlacedOrder{}, err
	}

	avg, _ := strconv.ParseFloat(res.AvgPrice, 64)
	filled, _ := strconv.ParseFloat(res.ExecutedQty, 64)
	return PlacedOrder{
		OrderID:     strconv.FormatInt(res.OrderID, 10),
		Status:      res.Status,
		AvgPrice:    avg,
		TotalFilled: filled,
		Timestamp:   time.UnixMilli(res.UpdateTimeRaw),
	}, nil
}

// SetLeverage configures leverage for a symbol before placing leveraged orders.
func (b *Binance) SetLeverage(ctx context.Context, pair string, leverage int, creds Credentials) error {
	params := url.Values{}
	params.Set("symbol", normalizePair(pair))
	params.Set("leverage", strconv.Itoa(leverage))
	return b.signedCall(ctx, "POST", "/fapi/v1/leverage", params, creds, nil)
}

// GetOpenPositions lists non-flat positions.
func (b *Binance) GetOpenPositions(ctx context.Context, creds Credentials) ([]Position, error) {
	var rows []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
		Leverage    string `json:"leverage"`
		UnPnL       string `json:"unRealizedProfit"`
	}
	if err := b.signedCall(ctx, "GET", "/fapi/v2/positionRisk", nil, creds, &rows); err != nil {
		return nil, err
	}

	var out []Position
	for _, r := range rows {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		lev, _ := strconv.Atoi(r.Leverage)
		pnl, _ := strconv.ParseFloat(r.UnPnL, 64)
		side := SideLong
		qty := amt
		if amt < 0 {
			side = SideShort
			qty = -amt
		}
		out = append(out, Position{
			Pair: r.Symbol, Side: side, Quantity: qty,
			EntryPrice: entry, Leverage: lev, UnrealizedPnL: pnl,
		})
	}
	return out, nil
}

// CancelOrder cancels a resting order by exchange id.
func (b *Binance) CancelOrder(ctx context.Context, orderID, pair string, creds Credentials) error {
	params := url.Values{}
	params.Set("symbol", normalizePair(pair))
	params.Set("orderId", orderID)
	return b.signedCall(ctx, "DELETE", "/fapi/v1/order", params, creds, nil)
}

// binanceSide maps position side to the order side of the venue. Closing a
// long sells, closing a short buys.
func binanceSide(side Side, reduce bool) string {
	long := side == SideLong
	if reduce {
		long = !long
	}
	if long {
		return "BUY"
	}
	return "SELL"
}

var _ Connector = (*Binance)(nil)

// normalizePair strips separators so "BTC/USDT" and "BTCUSDT" address the
// same market.
func normalizePair(pair string) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "", "_", "").Replace(pair))
}
