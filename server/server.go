// Package server exposes the council over HTTP: a JSON endpoint for model
// discovery and conversations, and a websocket endpoint that streams
// per-model deltas while a council query runs.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/hupe1980/llmcouncil/backend"
	"github.com/hupe1980/llmcouncil/core"
	"github.com/hupe1980/llmcouncil/logging"
	"github.com/hupe1980/llmcouncil/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Council is the query surface the server drives.
type Council interface {
	Query(ctx context.Context, models []string, turns []core.Turn, observer core.ObserverFunc) (core.ResultMap, error)
	AvailableModels() []backend.ModelInfo
	CouncilModels() []string
}

// Options configure the Server.
type Options struct {
	// Store persists conversations. Nil disables the conversation routes and
	// persistence of websocket queries.
	Store *storage.Store

	// AllowedOrigins lists origins (full origin or host) accepted for
	// websocket upgrades. Empty means same host only.
	AllowedOrigins []string

	// WriteTimeout bounds each websocket frame write.
	WriteTimeout time.Duration

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Server serves the council API.
type Server struct {
	council Council
	opts    Options
	mux     *http.ServeMux
}

// New creates a Server and registers its routes.
func New(council Council, optFns ...func(o *Options)) *Server {
	opts := Options{
		WriteTimeout: 10 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	s := &Server{council: council, opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("GET /ws/query", s.handleQuery)
	if opts.Store != nil {
		s.mux.HandleFunc("GET /api/conversations", s.handleListConversations)
		s.mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
		s.mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type modelsResponse struct {
	Models        []backend.ModelInfo `json:"models"`
	CouncilModels []string            `json:"council_models"`
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	models := s.council.AvailableModels()
	if models == nil {
		models = []backend.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models, CouncilModels: s.council.CouncilModels()})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.opts.Store.List(r.Context())
	if err != nil {
		s.opts.Logger.Error("List conversations failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.opts.Store.Create(r.Context(), "")
	if err != nil {
		s.opts.Logger.Error("Create conversation failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.opts.Store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.opts.Logger.Error("Get conversation failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()
	if originHost == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, allowedOrigin := range allowed {
			if strings.EqualFold(origin, allowedOrigin) || strings.EqualFold(originHost, allowedOrigin) {
				return true
			}
		}
		return false
	}

	return strings.EqualFold(originHost, hostOnly(r.Host))
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return strings.Trim(hostport, "[]")
	}
	return host
}

// titleFrom derives a conversation title from the first user message.
func titleFrom(content string) string {
	const maxRunes = 50
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= maxRunes {
		return content
	}
	return string([]rune(content)[:maxRunes]) + "..."
}

var _ http.Handler = (*Server)(nil)

// frameWriter serializes frame writes on one websocket connection; the
// observer is invoked from one goroutine per model.
type frameWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (fw *frameWriter) write(f frame) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.conn.SetWriteDeadline(time.Now().Add(fw.timeout)); err != nil {
		return err
	}
	return fw.conn.WriteJSON(f)
}
