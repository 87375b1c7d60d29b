package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/saude/saude/internal/platform/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 << 10
)

// ClientMessage is an inbound control message: {"action":"subscribe",
// "topics":["provider:7"]}. Clients cannot subscribe to anyone else's topics.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// subscriptionsMessage answers every control message with the resulting
// subscriptions.
type subscriptionsMessage struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// ProcessMessage applies a control message. Unknown actions are ignored.
func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics)
	}
}

// TopicResolver returns the topics an account may listen on: its person or
// provider channel. An empty result means the account has no profile yet.
type TopicResolver func(ctx context.Context, accountID string) ([]string, error)

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	hub      *Hub
	resolve  TopicResolver
	upgrader gorillawebsocket.Upgrader
}

// NewHandler builds the upgrade handler. originOK reports whether a browser
// Origin header is acceptable; nil accepts any.
func NewHandler(hub *Hub, resolve TopicResolver, originOK func(origin string) bool) *Handler {
	return &Handler{
		hub:     hub,
		resolve: resolve,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originOK == nil || originOK(origin)
			},
		},
	}
}

func (wsh *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET(auth.WebsocketPath, wsh.HandleConnect)
}

// HandleConnect resolves the caller's topics, upgrades the connection and
// starts the read and write loops.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	ctx := c.Request().Context()
	accountID := auth.UserIDFromContext(ctx)
	if accountID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	topics, err := wsh.resolve(ctx, accountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve profile")
	}
	if len(topics) == 0 {
		return echo.NewHTTPError(http.StatusForbidden, "complete onboarding before subscribing")
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already answered the client.
		return nil
	}

	client := NewClient(topics)
	wsh.hub.Register(client)
	wsh.hub.logger.Debug().Str("client_id", client.ID).Str("user_id", accountID).
		Strs("topics", topics).Msg("client connected")

	go wsh.writeLoop(client, ws)
	go wsh.readLoop(client, ws)
	return nil
}

func (wsh *Handler) readLoop(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				wsh.hub.logger.Debug().Err(err).Str("client_id", client.ID).Msg("connection lost")
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)

		reply, _ := json.Marshal(subscriptionsMessage{Type: "subscriptions", Topics: wsh.hub.Topics(client)})
		select {
		case client.Send <- reply:
		default:
		}
	}
}

// writeLoop owns all writes to ws. It ends when the hub closes Send or a
// write fails.
func (wsh *Handler) writeLoop(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
