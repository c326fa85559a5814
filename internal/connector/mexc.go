package connector

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const mexcContractURL = "https://contract.mexc.com"

// MEXC is a thin USDT-M perpetual client for contract.mexc.com.
// Signing differs from Binance: the signature covers accessKey + timestamp +
// the sorted parameter string and travels in headers, not the query.
type MEXC struct {
	client  *resty.Client
	limiter *WeightLimiter
}

// NewMEXC creates the live MEXC connector.
func NewMEXC() *MEXC {
	client := resty.New().
		SetBaseURL(mexcContractURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &MEXC{
		client:  client,
		limiter: NewWeightLimiter(500, 10*time.Second),
	}
}

func (m *MEXC) Name() string { return "mexc" }

// mexcPair renders pairs in MEXC contract form, e.g. BTC_USDT.
func mexcPair(pair string) string {
	p := normalizePair(pair)
	if strings.HasSuffix(p, "USDT") {
		return p[:len(p)-4] + "_USDT"
	}
	return p
}

func mexcParamString(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fmt.Sprint(params[k]))
	}
	return strings.Join(parts, "&")
}

func (m *MEXC) signedCall(ctx context.Context, method, endpoint string, params map[string]any, creds Credentials, out any) error {
	if m.limiter.ShouldDelay() {
		time.Sleep(time.Second)
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	var payload string
	if method == "GET" || method == "DELETE" {
		payload = mexcParamString(params)
	} else if params != nil {
		body, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("mexc encode %s: %w", endpoint, err)
		}
		payload = string(body)
	}

	mac := hmac.New(sha256.New, []byte(creds.APISecret))
	mac.Write([]byte(creds.APIKey + ts + payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	req := m.client.R().
		SetContext(ctx).
		SetHeader("ApiKey", creds.APIKey).
		SetHeader("Request-Time", ts).
		SetHeader("Signature", signature).
		SetHeader("Content-Type", "application/json")

	var (
		resp *resty.Response
		err  error
	)
	switch method {
	case "GET", "DELETE":
		path := endpoint
		if payload != "" {
			path += "?" + payload
		}
		if method == "GET" {
			resp, err = req.Get(path)
		} else {
			resp, err = req.Delete(path)
		}
	case "POST":
		resp, err = req.SetBody(payload).Post(endpoint)
	default:
		return fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return fmt.Errorf("mexc %s %s: %w", method, endpoint, err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("mexc decode %s: %w", endpoint, err)
	}
	if !envelope.Success {
		return fmt.Errorf("mexc %s: code=%d msg=%s", endpoint, envelope.Code, envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("mexc decode %s: %w", endpoint, err)
		}
	}
	return nil
}

// ValidateKeys performs a signed asset query to prove the key pair works.
func (m *MEXC) ValidateKeys(ctx context.Context, creds Credentials) error {
	_, err := m.GetBalance(ctx, creds)
	return err
}

// GetBalance returns the USDT contract account balance.
func (m *MEXC) GetBalance(ctx context.Context, creds Credentials) (Balance, error) {
	var row struct {
		Currency         string  `json:"currency"`
		AvailableBalance float64 `json:"availableBalance"`
		Equity           float64 `json:"equity"`
	}
	if err := m.signedCall(ctx, "GET", "/api/v1/private/account/asset/USDT", nil, creds, &row); err != nil {
		return Balance{}, err
	}
	return Balance{Available: row.AvailableBalance, Total: row.Equity}, nil
}

// mexcOrderSide maps direction to MEXC numeric sides:
// 1 open long, 2 close short, 3 open short, 4 close long.
func mexcOrderSide(side Side, reduce bool) int {
	switch {
	case side == SideLong && !reduce:
		return 1
	case side == SideShort && reduce:
		return 2
	case side == SideShort && !reduce:
		return 3
	default:
		return 4
	}
}

// PlaceOrder submits a contract order. The prices map is unused for live venues.
func (m *MEXC) PlaceOrder(ctx context.Context, req OrderRequest, creds Credentials, prices map[string]float64) (PlacedOrder, error) {
	orderType := 5 // market
	if req.Type == TypeLimit {
		orderType = 1
	}
	params := map[string]any{
		"symbol":   mexcPair(req.Pair),
		"side":     mexcOrderSide(req.Side, req.ReduceOnly),
		"type":     orderType,
		"openType": 1, // isolated margin
		"vol":      req.Quantity,
	}
	if req.Type == TypeLimit {
		params["price"] = req.Price
	}
	if req.Leverage > 1 {
		params["leverage"] = req.Leverage
	}
	if req.ClientID != "" {
		params["externalOid"] = req.ClientID
	}

	var orderID int64
	if err := m.signedCall(ctx, "POST", "/api/v1/private/order/submit", params, creds, &orderID); err != nil {
		return PlacedOrder{}, err
	}

	status := StatusFilled
	if req.Type == TypeLimit {
		status = StatusNew
	}
	return PlacedOrder{
		OrderID:     strconv.FormatInt(orderID, 10),
		Status:      status,
		AvgPrice:    req.Price,
		TotalFilled: req.Quantity,
		Timestamp:   time.Now(),
	}, nil
}

// SetLeverage configures isolated leverage for both holds of a symbol.
func (m *MEXC) SetLeverage(ctx context.Context, pair string, leverage int, creds Credentials) error {
	for _, positionType := range []int{1, 2} { // 1 long, 2 short
		params := map[string]any{
			"symbol":       mexcPair(pair),
			"leverage":     leverage,
			"openType":     1,
			"positionType": positionType,
		}
		if err := m.signedCall(ctx, "POST", "/api/v1/private/position/change_leverage", params, creds, nil); err != nil {
			return err
		}
	}
	return nil
}

// GetOpenPositions lists open holds.
func (m *MEXC) GetOpenPositions(ctx context.Context, creds Credentials) ([]Position, error) {
	var rows []struct {
		Symbol       string  `json:"symbol"`
		PositionType int     `json:"positionType"` // 1 long, 2 short
		HoldVol      float64 `json:"holdVol"`
		HoldAvgPrice float64 `json:"holdAvgPrice"`
		Leverage     int     `json:"leverage"`
		Realised     float64 `json:"realised"`
	}
	if err := m.signedCall(ctx, "GET", "/api/v1/private/position/open_positions", nil, creds, &rows); err != nil {
		return nil, err
	}

	var out []Position
	for _, r := range rows {
		if r.HoldVol == 0 {
			continue
		}
		side := SideLong
		if r.PositionType == 2 {
			side = SideShort
		}
		out = append(out, Position{
			Pair: r.Symbol, Side: side, Quantity: r.HoldVol,
			EntryPrice: r.HoldAvgPrice, Leverage: r.Leverage,
		})
	}
	return out, nil
}

// CancelOrder cancels a resting order by exchange id.
func (m *MEXC) CancelOrder(ctx context.Context, orderID, pair string, creds Credentials) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("mexc cancel: bad order id %q", orderID)
	}
	var results []struct {
		OrderID int64 `json:"orderId"`
		ErrCode int   `json:"errorCode"`
	}
	if err := m.signedCall(ctx, "POST", "/api/v1/private/order/cancel", map[string]any{"ids": []int64{id}}, creds, &results); err != nil {
		return err
	}
	for _, r := range results {
		if r.OrderID == id && r.ErrCode != 0 {
			return fmt.Errorf("mexc cancel %d: errorCode=%d", id, r.ErrCode)
		}
	}
	return nil
}

var _ Connector = (*MEXC)(nil)
