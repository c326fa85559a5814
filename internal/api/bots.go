package api

import (
	"context"
	"errors"
	"net/http"

	"bot-core/internal/strategy"

	"github.com/gin-gonic/gin"
)

// botAPI adapts one family service to the shared CRUD route shape. Every
// family exposes the same six operations; only the bot type differs.
type botAPI[B any] struct {
	create func(ctx context.Context, b *B) (*B, error)
	update func(ctx context.Context, userID string, b *B) (*B, error)
	get    func(ctx context.Context, userID, id string) (*B, error)
	list   func(ctx context.Context, userID string) ([]B, error)
	delete func(ctx context.Context, userID, id string) error
	toggle func(ctx context.Context, userID, id string) (*B, error)
}

func registerBotRoutes[B any, PB interface {
	*B
	strategy.Bot
}](g *gin.RouterGroup, api botAPI[B]) {
	g.GET("", func(c *gin.Context) {
		out, err := api.list(c.Request.Context(), CurrentUserID(c))
		if err != nil {
			respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
			return
		}
		c.JSON(http.StatusOK, out)
	})

	g.POST("", func(c *gin.Context) {
		var b B
		if err := c.ShouldBindJSON(&b); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
			return
		}
		PB(&b).Base().UserID = CurrentUserID(c)
		created, err := api.create(c.Request.Context(), &b)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_BOT", err.Error())
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	g.GET("/:id", func(c *gin.Context) {
		b, err := api.get(c.Request.Context(), CurrentUserID(c), c.Param("id"))
		if err != nil {
			respondBotError(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	})

	g.PUT("/:id", func(c *gin.Context) {
		var b B
		if err := c.ShouldBindJSON(&b); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
			return
		}
		PB(&b).Base().ID = c.Param("id")
		updated, err := api.update(c.Request.Context(), CurrentUserID(c), &b)
		if err != nil {
			if errors.Is(err, strategy.ErrBotNotFound) {
				respondBotError(c, err)
			} else {
				respondError(c, http.StatusBadRequest, "INVALID_BOT", err.Error())
			}
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	g.DELETE("/:id", func(c *gin.Context) {
		if err := api.delete(c.Request.Context(), CurrentUserID(c), c.Param("id")); err != nil {
			respondBotError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	})

	g.POST("/:id/toggle", func(c *gin.Context) {
		b, err := api.toggle(c.Request.Context(), CurrentUserID(c), c.Param("id"))
		if err != nil {
			respondBotError(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	})
}

func respondBotError(c *gin.Context, err error) {
	if errors.Is(err, strategy.ErrBotNotFound) {
		respondError(c, http.StatusNotFound, "BOT_NOT_FOUND", "bot not found")
		return
	}
	respondError(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
}

func (s *Server) gridRoutes(g *gin.RouterGroup) {
	registerBotRoutes[strategy.GridBot, *strategy.GridBot](g, botAPI[strategy.GridBot]{
		create: s.Grid.Create,
		update: s.Grid.Update,
		get:    s.Grid.Get,
		list:   s.Grid.List,
		delete: s.Grid.Delete,
		toggle: s.Grid.Toggle,
	})
}

func (s *Server) dcaRoutes(g *gin.RouterGroup) {
	registerBotRoutes[strategy.DCABot, *strategy.DCABot](g, botAPI[strategy.DCABot]{
		create: s.DCA.Create,
		update: s.DCA.Update,
		get:    s.DCA.Get,
		list:   s.DCA.List,
		delete: s.DCA.Delete,
		toggle: s.DCA.Toggle,
	})
}

func (s *Server) momentumRoutes(g *gin.RouterGroup) {
	registerBotRoutes[strategy.MomentumBot, *strategy.MomentumBot](g, botAPI[strategy.MomentumBot]{
		create: s.Momentum.Create,
		update: s.Momentum.Update,
		get:    s.Momentum.Get,
		list:   s.Momentum.List,
		delete: s.Momentum.Delete,
		toggle: s.Momentum.Toggle,
	})
}

func (s *Server) rsiRoutes(g *gin.RouterGroup) {
	registerBotRoutes[strategy.RSIBot, *strategy.RSIBot](g, botAPI[strategy.RSIBot]{
		create: s.RSI.Create,
		update: s.RSI.Update,
		get:    s.RSI.Get,
		list:   s.RSI.List,
		delete: s.RSI.Delete,
		toggle: s.RSI.Toggle,
	})
}

func (s *Server) candleRoutes(g *gin.RouterGroup) {
	registerBotRoutes[strategy.CandleBot, *strategy.CandleBot](g, botAPI[strategy.CandleBot]{
		create: s.Candle.Create,
		update: s.Candle.Update,
		get:    s.Candle.Get,
		list:   s.Candle.List,
		delete: s.Candle.Delete,
		toggle: s.Candle.Toggle,
	})
}
