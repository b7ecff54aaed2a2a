package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"whatsbridge/internal/delivery"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	maxFrameSize = 64 << 10

	defaultRatePerMinute = 30.0
	defaultRateBurst     = 5
)

// Sender delivers an outbound text message.
type Sender interface {
	Send(ctx context.Context, to, text string) (delivery.Result, error)
}

type HandlerConfig struct {
	Hub    *Hub
	Sender Sender
	// RatePerMinute and RateBurst bound sendMessage requests per client.
	RatePerMinute float64
	RateBurst     int
	Logger        *slog.Logger
}

// Handler upgrades HTTP requests to WebSocket and serves one client per
// connection.
type Handler struct {
	hub      *Hub
	sender   Sender
	perMin   float64
	burst    int
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = defaultRatePerMinute
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		hub:    cfg.Hub,
		sender: cfg.Sender,
		perMin: cfg.RatePerMinute,
		burst:  cfg.RateBurst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The bridge serves its own page; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: cfg.Logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	c, err := h.hub.Attach(uuid.NewString())
	if err != nil {
		h.logger.Warn("websocket client rejected", "remote", r.RemoteAddr, "err", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many clients"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.writeLoop(conn, c)

	// Sends outlive the socket: a client that leaves mid-retry does not
	// cancel the message.
	h.readLoop(context.WithoutCancel(r.Context()), conn, c)
}

// readLoop handles client frames until the connection fails.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, c *Client) {
	defer func() {
		h.hub.Detach(c)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.perMin/60.0), h.burst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "client_id", c.ID(), "err", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Warn("invalid websocket frame", "client_id", c.ID(), "err", err)
			continue
		}

		switch env.Type {
		case EventSendMessage:
			var req SendRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				h.hub.SendTo(c, EventSendResult, SendResult{Error: "malformed sendMessage payload"})
				continue
			}
			if !limiter.Allow() {
				h.logger.Warn("send rate limited", "client_id", c.ID(), "to", req.To)
				h.hub.SendTo(c, EventSendResult, SendResult{To: req.To, Error: "rate limited"})
				continue
			}
			go h.dispatch(ctx, c, req)
		default:
			h.logger.Debug("ignoring websocket event", "client_id", c.ID(), "type", env.Type)
		}
	}
}

// dispatch runs one send and reports the outcome to the requesting client.
func (h *Handler) dispatch(ctx context.Context, c *Client, req SendRequest) {
	res, err := h.sender.Send(ctx, req.To, req.Text)
	out := SendResult{To: res.To, OK: err == nil, Attempts: res.Attempts}
	if out.To == "" {
		out.To = req.To
	}
	if err != nil {
		out.Error = err.Error()
	}
	h.hub.SendTo(c, EventSendResult, out)
}

// writeLoop drains the client's queue to the socket and keeps it alive with
// pings. It exits when the hub closes the queue or a write fails.
func (h *Handler) writeLoop(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug("websocket write failed", "client_id", c.ID(), "err", err)
				h.hub.Detach(c)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Detach(c)
				return
			}
		}
	}
}
