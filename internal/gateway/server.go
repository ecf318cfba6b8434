package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SubratDash67/iplauctionbot/internal/config"
	"github.com/SubratDash67/iplauctionbot/internal/engine"
	"github.com/SubratDash67/iplauctionbot/internal/export"
	"github.com/SubratDash67/iplauctionbot/internal/store"
)

// Server wires the engine, the store, and the hub behind HTTP routes.
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	store  *store.Store
	hub    *Hub

	upgrader websocket.Upgrader
}

// NewServer builds a gateway server. Run the hub (Hub) alongside the
// HTTP listener.
func NewServer(cfg *config.Config, e *engine.Engine, st *store.Store) *Server {
	return &Server{
		cfg:    cfg,
		engine: e,
		store:  st,
		hub:    NewHub(e),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Hub returns the broadcast hub; the caller owns its Run loop.
func (s *Server) Hub() *Hub { return s.hub }

// Routes returns the HTTP mux: the WebSocket endpoint plus read-only
// REST views of auction state.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWs)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/teams", s.handleTeams)
	mux.HandleFunc("/api/squads/", s.handleSquad)
	mux.HandleFunc("/api/results", s.handleResults)
	return mux
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("gateway: upgrade failed", "error", err)
		return
	}
	client := newClient(s, conn)
	s.hub.register <- client
	go client.writePump()
	go client.readPump(r.Context())
}

// Dispatch applies one frame against the engine and returns the direct
// reply. Admin commands are gated on the configured admin list.
func (s *Server) Dispatch(ctx context.Context, frame Frame) Reply {
	op := frame.Type
	switch op {
	case "bid":
		bid, err := s.engine.SubmitBid(ctx, frame.UserID, frame.Amount)
		if err != nil {
			return errorReply(op, err)
		}
		return Reply{Type: ReplyOK, Op: op, Bid: &bid}

	case "state":
		return Reply{Type: ReplyState, Op: op, State: s.engine.Snapshot()}
	}

	// Everything below mutates session state and is admin-only.
	if !s.cfg.IsAdmin(frame.UserID) {
		return Reply{Type: ReplyError, Op: op, Code: "FORBIDDEN",
			Message: "admin command from non-admin user"}
	}

	var err error
	switch op {
	case "start":
		err = s.engine.Start(ctx)
	case "stop":
		err = s.engine.StopSession(ctx)
	case "pause":
		err = s.engine.Pause(ctx)
	case "resume":
		err = s.engine.Resume(ctx)
	case "sell":
		err = s.engine.SellTo(ctx, frame.Team)
	case "unsold":
		err = s.engine.MarkUnsold(ctx)
	case "skip":
		err = s.engine.Skip(ctx)
	case "rollback":
		err = s.engine.Rollback(ctx)
	case "release":
		err = s.engine.Release(ctx, frame.PlayerID)
	case "set_purse":
		err = s.engine.SetPurse(ctx, frame.Team, frame.Amount)
	case "set_countdown":
		err = s.engine.SetCountdown(ctx, time.Duration(frame.Seconds)*time.Second)
	case "clear":
		err = s.engine.Clear(ctx)
	case "enable_list":
		err = s.engine.SetListEnabled(ctx, frame.List, true)
	case "disable_list":
		err = s.engine.SetListEnabled(ctx, frame.List, false)
	case "assign":
		err = s.store.AssignUser(ctx, frame.Target, frame.Team)
	case "unassign":
		err = s.store.UnassignUser(ctx, frame.Target)
	default:
		return Reply{Type: ReplyError, Op: op, Code: "UNKNOWN_OP",
			Message: "unknown frame type"}
	}
	if err != nil {
		return errorReply(op, err)
	}
	return Reply{Type: ReplyOK, Op: op}
}

func errorReply(op string, err error) Reply {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return Reply{Type: ReplyError, Op: op, Code: string(ee.Code),
			Message: ee.Message, Details: ee.Details}
	}
	slog.Error("gateway: command failed", "op", op, "error", err)
	return Reply{Type: ReplyError, Op: op, Code: "INTERNAL",
		Message: "internal error"}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	bids, err := s.engine.History(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, bids)
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.engine.Purses(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, teams)
}

func (s *Server) handleSquad(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/api/squads/")
	if code == "" {
		http.Error(w, "missing team code", http.StatusBadRequest)
		return
	}
	squad, err := s.engine.Squad(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, squad)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	report, err := export.Build(r.Context(), s.store, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("gateway: encode response failed", "error", err)
	}
}
