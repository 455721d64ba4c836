package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-arena/internal/auth"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

// WSOptions tunes websocket connections. Zero values take defaults.
type WSOptions struct {
	OriginPatterns []string
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadLimit      int64
}

func (o WSOptions) withDefaults() WSOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 16 << 10
	}
	return o
}

// WSHandler upgrades authenticated requests and pumps operations into the Dispatcher.
type WSHandler struct {
	auth     *auth.Manager
	conns    *ConnManager
	dispatch *Dispatcher
	limits   *LimiterStore
	opts     WSOptions
}

func NewWSHandler(am *auth.Manager, conns *ConnManager, d *Dispatcher, limits *LimiterStore, opts WSOptions) *WSHandler {
	return &WSHandler{auth: am, conns: conns, dispatch: d, limits: limits, opts: opts.withDefaults()}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.Authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, matchdto.ErrorResponse{Code: matchdto.CodeUnauthorized, Message: "unauthorized"})
		return
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.opts.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("gateway_ws_accept_error", zap.Error(err))
		return
	}
	c.SetReadLimit(h.opts.ReadLimit)

	conn := newWSConn(uuid.NewString(), claims.Player(), c, h.opts.SendBuffer)
	h.conns.Register(conn)
	defer h.conns.Unregister(conn.id)
	obslog.L().Info("gateway_ws_connect", zap.String("conn_id", conn.id), zap.String("user_id", conn.player.ID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn.writeLoop(ctx, h.opts.WriteTimeout, h.opts.PingInterval)
	}()

	h.readLoop(ctx, conn)
	conn.close(websocket.StatusNormalClosure, "")
	cancel()
	wg.Wait()
	obslog.L().Info("gateway_ws_disconnect", zap.String("conn_id", conn.id), zap.String("user_id", conn.player.ID))
}

func (h *WSHandler) readLoop(ctx context.Context, conn *wsConn) {
	for {
		typ, data, err := conn.c.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("gateway_ws_read_error", zap.String("conn_id", conn.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if h.limits != nil && !h.limits.Allow(conn.player.ID) {
			obslog.L().Warn("gateway_rate_limited", zap.String("conn_id", conn.id), zap.String("user_id", conn.player.ID))
			continue
		}
		op, err := DecodeOperation(data)
		if err != nil {
			obslog.L().Debug("gateway_bad_operation", zap.String("conn_id", conn.id), zap.Error(err))
			continue
		}
		if err := h.dispatch.Dispatch(ctx, conn.id, conn.player, op); err != nil {
			obslog.L().Error("gateway_dispatch_error",
				zap.String("conn_id", conn.id),
				zap.String("match_id", op.Match()),
				zap.Error(err),
			)
		}
	}
}

// wsConn is a server-side connection with a bounded outbound queue.
type wsConn struct {
	id     string
	player match.Player
	c      *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newWSConn(id string, p match.Player, c *websocket.Conn, buffer int) *wsConn {
	return &wsConn{id: id, player: p, c: c, send: make(chan []byte, buffer), done: make(chan struct{})}
}

func (w *wsConn) ID() string { return w.id }

// Send queues frame without blocking; a full queue drops it.
func (w *wsConn) Send(frame []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.send <- frame:
		return true
	default:
		return false
	}
}

func (w *wsConn) close(code websocket.StatusCode, reason string) {
	w.once.Do(func() {
		close(w.done)
		_ = w.c.Close(code, reason)
	})
}

func (w *wsConn) writeLoop(ctx context.Context, timeout, pingEvery time.Duration) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case frame := <-w.send:
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := w.c.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				w.close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, timeout)
			err := w.c.Ping(pctx)
			cancel()
			if err != nil {
				w.close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}
