// Package api exposes the running engine over a local HTTP control surface.
// Clients (editors, TUIs, scripts) talk JSON to the loopback address; the
// daemon itself never listens beyond it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/Sagarika311/roomsync/internal/bus"
	"github.com/Sagarika311/roomsync/internal/chat"
	"github.com/Sagarika311/roomsync/internal/editlock"
	"github.com/Sagarika311/roomsync/internal/presence"
	"github.com/Sagarika311/roomsync/internal/status"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Server serves the control API.
type Server struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	rec         *chat.Reconciler
	coord       *editlock.Coordinator
	tracker     *presence.Tracker
	bus         *bus.Bus
	logger      *zap.Logger

	addr string
	srv  *fasthttp.Server
	ln   net.Listener
}

// NewServer creates the control API server bound to addr.
func NewServer(sessionName, addr string, machine *status.Machine, rec *chat.Reconciler, coord *editlock.Coordinator, tracker *presence.Tracker, b *bus.Bus, logger *zap.Logger) *Server {
	s := &Server{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		rec:         rec,
		coord:       coord,
		tracker:     tracker,
		bus:         b,
		logger:      logger,
		addr:        addr,
	}
	s.srv = &fasthttp.Server{Handler: s.handle, Name: "roomsyncd"}
	return s
}

// Start listens and serves until Stop. Blocks.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("control api listening", zap.String("addr", ln.Addr().String()))
	return s.srv.Serve(ln)
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down, honoring ctx.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.ShutdownWithContext(ctx); err != nil {
		s.logger.Warn("control api shutdown", zap.Error(err))
	}
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())

	switch {
	case method == fasthttp.MethodGet && path == "/v1/status":
		s.handleStatus(ctx)
	case method == fasthttp.MethodGet && path == "/v1/messages":
		s.handleListMessages(ctx)
	case method == fasthttp.MethodPost && path == "/v1/messages":
		s.handleSend(ctx)
	case method == fasthttp.MethodGet && path == "/v1/presence":
		s.handlePresence(ctx)
	case method == fasthttp.MethodGet && path == "/v1/events":
		s.handleEvents(ctx)
	case strings.HasPrefix(path, "/v1/messages/"):
		s.handleMessage(ctx, method, strings.TrimPrefix(path, "/v1/messages/"))
	default:
		writeError(ctx, fasthttp.StatusNotFound, "no such route")
	}
}

type statusResponse struct {
	Session  string `json:"session"`
	Status   string `json:"status"`
	UptimeMs int64  `json:"uptimeMs"`
	Sending  bool   `json:"sending"`
}

func (s *Server) handleStatus(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, statusResponse{
		Session:  s.sessionName,
		Status:   string(s.machine.Current()),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
		Sending:  s.rec.Sending(),
	})
}

type messageView struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"userId"`
	AuthorName    string    `json:"userName"`
	Content       string    `json:"content"`
	Edited        bool      `json:"edited"`
	EditingBy     string    `json:"editingBy,omitempty"`
	EditingByName string    `json:"editingByName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func viewOf(m chat.Message) messageView {
	return messageView{
		ID:            m.ID,
		AuthorID:      m.AuthorID,
		AuthorName:    m.AuthorName,
		Content:       m.Content,
		Edited:        m.Edited,
		EditingBy:     m.EditingBy,
		EditingByName: m.EditingByName,
		CreatedAt:     m.CreatedAt,
	}
}

func (s *Server) handleListMessages(ctx *fasthttp.RequestCtx) {
	msgs := s.rec.List()
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, viewOf(m))
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"messages": views})
}

type sendRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSend(ctx *fasthttp.RequestCtx) {
	var req sendRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "malformed body")
		return
	}
	// Detached context: the engine finishes the store call after this
	// handler returns and fasthttp recycles ctx.
	if err := s.rec.Send(context.Background(), req.Content); err != nil {
		writeChatError(ctx, err)
		return
	}
	// Accepted, not created: the store call completes asynchronously and its
	// outcome rides the event bus.
	writeJSON(ctx, fasthttp.StatusAccepted, map[string]any{"accepted": true})
}

type editRequest struct {
	Content     string `json:"content"`
	ReleaseLock bool   `json:"releaseLock"`
}

// handleMessage routes the per-message operations: edit, delete, and the
// advisory lock begin/end.
func (s *Server) handleMessage(ctx *fasthttp.RequestCtx, method, rest string) {
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(ctx, fasthttp.StatusNotFound, "no such route")
		return
	}

	switch {
	case sub == "" && method == fasthttp.MethodPatch:
		var req editRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "malformed body")
			return
		}
		opts := chat.EditOptions{ClearEditing: req.ReleaseLock}
		if err := s.rec.Edit(context.Background(), id, req.Content, opts); err != nil {
			writeChatError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusAccepted, map[string]any{"accepted": true})

	case sub == "" && method == fasthttp.MethodDelete:
		if err := s.rec.Delete(context.Background(), id); err != nil {
			writeChatError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusAccepted, map[string]any{"accepted": true})

	case sub == "lock" && method == fasthttp.MethodPost:
		msg, ok := s.findMessage(id)
		if !ok {
			writeError(ctx, fasthttp.StatusNotFound, "unknown message")
			return
		}
		if err := s.coord.Begin(context.Background(), msg); err != nil {
			writeChatError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusAccepted, map[string]any{"accepted": true})

	case sub == "lock" && method == fasthttp.MethodDelete:
		msg, ok := s.findMessage(id)
		if !ok {
			writeError(ctx, fasthttp.StatusNotFound, "unknown message")
			return
		}
		if err := s.coord.End(context.Background(), msg); err != nil {
			writeChatError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusAccepted, map[string]any{"accepted": true})

	default:
		writeError(ctx, fasthttp.StatusNotFound, "no such route")
	}
}

func (s *Server) findMessage(id string) (chat.Message, bool) {
	for _, m := range s.rec.List() {
		if m.ID == id {
			return m, true
		}
	}
	return chat.Message{}, false
}

type presenceView struct {
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	LastActive time.Time `json:"lastActive"`
}

func (s *Server) handlePresence(ctx *fasthttp.RequestCtx) {
	online := s.tracker.Online()
	views := make([]presenceView, 0, len(online))
	for _, r := range online {
		views = append(views, presenceView{UserID: r.UserID, Username: r.Username, LastActive: r.LastActive})
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"online": views})
}

type eventView struct {
	Kind       string `json:"kind"`
	OccurredMs int64  `json:"occurredAtMs"`
}

const (
	defaultEventWait = 25 * time.Second
	maxEventWait     = 30 * time.Second
)

// handleEvents long-polls the bus: the next event whose kind matches the
// prefix is returned, or 204 after the wait window.
func (s *Server) handleEvents(ctx *fasthttp.RequestCtx) {
	prefix := string(ctx.QueryArgs().Peek("prefix"))

	wait := defaultEventWait
	if ms := ctx.QueryArgs().GetUintOrZero("wait_ms"); ms > 0 {
		wait = time.Duration(ms) * time.Millisecond
		if wait > maxEventWait {
			wait = maxEventWait
		}
	}

	ch, unsub := s.bus.Subscribe(prefix, 64)
	defer unsub()

	select {
	case evt := <-ch:
		writeJSON(ctx, fasthttp.StatusOK, eventView{
			Kind:       evt.Kind,
			OccurredMs: evt.Timestamp.UnixMilli(),
		})
	case <-time.After(wait):
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}
}

// writeChatError maps domain errors onto HTTP statuses. Transport failures
// never show up here; they ride the bus.
func writeChatError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyContent), errors.Is(err, chat.ErrContentTooLong):
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotAuthenticated), errors.Is(err, editlock.ErrNotAuthenticated):
		writeError(ctx, fasthttp.StatusUnauthorized, err.Error())
	default:
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, code int, msg string) {
	writeJSON(ctx, code, map[string]string{"error": msg})
}
