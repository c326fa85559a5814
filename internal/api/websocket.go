package api

import (
	"net/http"

	"bot-core/internal/events"
	"bot-core/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTopics is everything the dashboard listens to.
var wsTopics = []events.Event{
	events.EventPriceTick,
	events.EventCandleClosed,
	events.EventOrderCreated,
	events.EventOrderFilled,
	events.EventOrderClosed,
	events.EventBotTriggered,
	events.EventBotError,
}

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.S().Warnw("ws upgrade error", "error", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	out := make(chan wsMessage, 256)
	done := make(chan struct{})

	for _, topic := range wsTopics {
		stream, unsub := s.Bus.Subscribe(topic, 64)
		defer unsub()
		go func(topic events.Event, stream <-chan any) {
			for {
				select {
				case payload, ok := <-stream:
					if !ok {
						return
					}
					select {
					case out <- wsMessage{Type: string(topic), Data: payload}:
					default:
						// drop when the client cannot keep up
					}
				case <-done:
					return
				}
			}
		}(topic, stream)
	}

	// Reader goroutine: detects client disconnect.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-out:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
