package api

import (
	"errors"
	"net/http"
	"time"

	"bot-core/internal/account"
	"bot-core/internal/connector"
	"bot-core/internal/order"
	"bot-core/internal/strategy"
	"bot-core/internal/template"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondPipelineError maps the order pipeline's error taxonomy to HTTP.
func respondPipelineError(c *gin.Context, err error) {
	var (
		vErr  *order.ValidationError
		aErr  *order.AccountError
		bErr  *order.InsufficientBalanceError
		cErr  *order.ConnectorError
		csErr *order.ConsistencyError
	)
	switch {
	case errors.As(err, &vErr):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", vErr.Error())
	case errors.As(err, &bErr):
		respondError(c, http.StatusBadRequest, "INSUFFICIENT_BALANCE", bErr.Error())
	case errors.As(err, &aErr):
		respondError(c, http.StatusBadRequest, "ACCOUNT_ERROR", aErr.Error())
	case errors.As(err, &csErr):
		respondError(c, http.StatusConflict, "CONSISTENCY_ERROR", csErr.Error())
	case errors.As(err, &cErr):
		respondError(c, http.StatusBadGateway, "CONNECTOR_ERROR", cErr.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// Templates

func (s *Server) listTemplates(c *gin.Context) {
	userID := CurrentUserID(c)
	out, err := s.Templates.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createTemplate(c *gin.Context) {
	userID := CurrentUserID(c)
	var t template.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	t.UserID = userID
	created, err := s.Templates.Create(c.Request.Context(), &t)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_TEMPLATE", err.Error())
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) getTemplate(c *gin.Context) {
	userID := CurrentUserID(c)
	t, err := s.Templates.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			respondError(c, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "template not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTemplate(c *gin.Context) {
	userID := CurrentUserID(c)
	var t template.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	t.ID = c.Param("id")
	updated, err := s.Templates.Update(c.Request.Context(), userID, &t)
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			respondError(c, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "template not found")
			return
		}
		respondError(c, http.StatusBadRequest, "INVALID_TEMPLATE", err.Error())
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	userID := CurrentUserID(c)
	if err := s.Templates.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		if errors.Is(err, template.ErrNotFound) {
			respondError(c, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "template not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Accounts

type createAccountRequest struct {
	Name      string `json:"name" binding:"required,min=1"`
	Exchange  string `json:"exchange" binding:"required,min=1"`
	Mode      string `json:"mode" binding:"required,oneof=live demo"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

func (s *Server) listAccounts(c *gin.Context) {
	userID := CurrentUserID(c)
	out, err := s.Accounts.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createAccount(c *gin.Context) {
	userID := CurrentUserID(c)
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	// Live keys are proven against the exchange before they are stored.
	if connector.Mode(req.Mode) == connector.ModeLive && s.Registry != nil {
		creds := connector.Credentials{
			Exchange:  req.Exchange,
			Mode:      connector.ModeLive,
			APIKey:    req.APIKey,
			APISecret: req.APISecret,
		}
		conn, err := s.Registry.ForCredentials(creds)
		if err != nil {
			respondError(c, http.StatusBadRequest, "UNSUPPORTED_EXCHANGE", err.Error())
			return
		}
		if err := conn.ValidateKeys(c.Request.Context(), creds); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_KEYS", "exchange rejected the key pair")
			return
		}
	}

	acc, err := s.Accounts.Create(c.Request.Context(), userID, req.Name, req.Exchange,
		connector.Mode(req.Mode), req.APIKey, req.APISecret)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ACCOUNT", err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":        acc.ID,
		"name":      acc.Name,
		"exchange":  acc.Exchange,
		"mode":      acc.Mode,
		"createdAt": acc.CreatedAt,
	})
}

func (s *Server) deleteAccount(c *gin.Context) {
	userID := CurrentUserID(c)
	if err := s.Accounts.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			respondError(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Orders

type createOrderRequest struct {
	AccountID  string  `json:"accountId" binding:"required"`
	TemplateID string  `json:"templateId" binding:"required"`
	Pair       string  `json:"pair"`
	Direction  string  `json:"direction"`
	Size       float64 `json:"size"`
	SizeMode   string  `json:"sizeMode"`
	Leverage   int     `json:"leverage"`
	OrderType  string  `json:"orderType"`
	LimitPrice float64 `json:"limitPrice"`
}

func (s *Server) listOrders(c *gin.Context) {
	userID := CurrentUserID(c)
	out, err := s.Orders.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, out)
}

// createOrder submits a manual order through the same pipeline bot
// triggers use.
func (s *Server) createOrder(c *gin.Context) {
	userID := CurrentUserID(c)
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	if s.LockManual && s.Locker != nil {
		status, err := s.Locker.IsLocked(c.Request.Context(), strategy.FamilyCandleStrike, time.Now())
		if err == nil && status.Locked {
			respondError(c, http.StatusConflict, "FAMILY_LOCKED",
				"trading is locked by a candle strike cooldown")
			return
		}
	}

	ord, err := s.Executor.Execute(c.Request.Context(), order.Request{
		UserID:     userID,
		AccountID:  req.AccountID,
		TemplateID: req.TemplateID,
		Source:     order.SourceManual,
		Overrides: template.Overrides{
			Pair:       req.Pair,
			Direction:  req.Direction,
			Size:       req.Size,
			SizeMode:   template.SizeMode(req.SizeMode),
			Leverage:   req.Leverage,
			OrderType:  connector.OrderType(req.OrderType),
			LimitPrice: req.LimitPrice,
		},
	})
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ord)
}

func (s *Server) closeOrder(c *gin.Context) {
	userID := CurrentUserID(c)
	deal, err := s.Orders.Close(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
			return
		}
		respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (s *Server) cancelOrder(c *gin.Context) {
	userID := CurrentUserID(c)
	if err := s.Orders.Cancel(c.Request.Context(), userID, c.Param("id")); err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
			return
		}
		respondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) listDeals(c *gin.Context) {
	userID := CurrentUserID(c)
	out, err := s.Orders.Deals(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, out)
}

// Market data

func (s *Server) getMarketData(c *gin.Context) {
	pair := c.Param("pair")
	md := s.Hub.Data(pair)
	if md.Price == 0 && len(md.Candles) == 0 {
		respondError(c, http.StatusNotFound, "PAIR_NOT_FOUND", "no market data for pair")
		return
	}
	c.JSON(http.StatusOK, md)
}

// Safety

func (s *Server) getFamilyLock(c *gin.Context) {
	family := c.Param("family")
	status, err := s.Locker.IsLocked(c.Request.Context(), family, time.Now())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"family":           family,
		"locked":           status.Locked,
		"holder":           status.Holder,
		"remainingSeconds": int(status.Remaining.Seconds()),
		"lastExecution":    status.LastExecution,
	})
}
