package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/relay/internal/api"
	"github.com/matheus3301/relay/internal/chat"
	"github.com/matheus3301/relay/internal/domain"
	"github.com/matheus3301/relay/internal/live"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

// Frame types exchanged over /ws.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeReady       = "ready"
	TypeSnapshot    = "snapshot"
	TypeError       = "error"
)

// ClientFrame is sent by the browser. ID names the subscription and is chosen
// by the client.
type ClientFrame struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Query string         `json:"query,omitempty"`
	Args  chat.QueryArgs `json:"args,omitempty"`
}

// ServerFrame is pushed to the browser.
type ServerFrame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	User  *domain.User    `json:"user,omitempty"`
	Event *api.WatchEvent `json:"event,omitempty"`
	Error *api.ErrorBody  `json:"error,omitempty"`
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	if g.verifier == nil {
		http.Error(w, "identity provider not configured", http.StatusServiceUnavailable)
		return
	}
	raw, err := bearerToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := g.verifier.Verify(raw)
	if err != nil {
		g.logger.Warn("ws auth rejected", zap.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	user, err := g.engine.EnsureUser(r.Context(), id)
	if err != nil {
		g.logger.Error("ws ensure user", zap.Error(err))
		http.Error(w, "identity sync failed", http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	g.connected(user.ID)
	defer g.disconnected(user.ID)

	s := &session{
		g:      g,
		conn:   conn,
		user:   user,
		send:   make(chan ServerFrame, sendBuffer),
		subs:   make(map[string]*live.Subscription),
		logger: g.logger.With(zap.String("user", user.ID)),
	}
	s.run(r.Context())
}

func (g *Gateway) connected(userID string) {
	g.mu.Lock()
	g.conns[userID]++
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.WebsocketConnections.Inc()
	}
}

// disconnected marks the user offline when their last socket closes.
func (g *Gateway) disconnected(userID string) {
	g.mu.Lock()
	g.conns[userID]--
	last := g.conns[userID] <= 0
	if last {
		delete(g.conns, userID)
	}
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.WebsocketConnections.Dec()
	}
	if !last {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.engine.SetPresence(ctx, userID, false); err != nil {
		g.logger.Warn("ws mark offline", zap.String("user", userID), zap.Error(err))
	}
}

type session struct {
	g      *Gateway
	conn   *websocket.Conn
	user   *domain.User
	send   chan ServerFrame
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]*live.Subscription
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ctx)
		// unblock readPump if the writer failed first
		_ = s.conn.Close()
	}()

	s.push(ctx, ServerFrame{Type: TypeReady, User: s.user})
	s.readPump(ctx)

	cancel()
	<-done
	s.closeAll()
	_ = s.conn.Close()
}

func (s *session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f ClientFrame
		if err := s.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("ws read ended", zap.Error(err))
			}
			return
		}
		switch f.Type {
		case TypeSubscribe:
			s.subscribe(ctx, f)
		case TypeUnsubscribe:
			s.unsubscribe(f.ID)
		default:
			s.push(ctx, errorFrame(f.ID, "unknown frame type "+f.Type))
		}
	}
}

func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (s *session) push(ctx context.Context, f ServerFrame) {
	select {
	case s.send <- f:
	case <-ctx.Done():
	}
}

// subscribe starts a live query for the authenticated user. Reusing an id
// replaces the previous subscription.
func (s *session) subscribe(ctx context.Context, f ClientFrame) {
	if f.ID == "" {
		s.push(ctx, errorFrame("", "subscription id is required"))
		return
	}
	q, err := s.g.engine.Query(f.Query, s.user.ID, f.Args)
	if err != nil {
		s.push(ctx, errorFrame(f.ID, err.Error()))
		return
	}
	s.unsubscribe(f.ID)

	sub := s.g.hub.Subscribe(ctx, q)
	s.mu.Lock()
	s.subs[f.ID] = sub
	s.mu.Unlock()
	s.logger.Debug("ws subscribed", zap.String("id", f.ID), zap.String("query", sub.Signature()))

	go func() {
		for snap := range sub.C() {
			ev, err := api.NewWatchEvent(snap)
			if err != nil {
				s.push(ctx, errorFrame(f.ID, err.Error()))
				continue
			}
			s.push(ctx, ServerFrame{Type: TypeSnapshot, ID: f.ID, Event: ev})
		}
	}()
}

func (s *session) unsubscribe(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		sub.Close()
	}
}

func (s *session) closeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]*live.Subscription)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func errorFrame(id, msg string) ServerFrame {
	return ServerFrame{Type: TypeError, ID: id, Error: &api.ErrorBody{Message: msg}}
}
