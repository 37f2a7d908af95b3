package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/llmcouncil/core"
	"github.com/hupe1980/llmcouncil/storage"
)

// Frame types sent on /ws/query.
const (
	FrameDelta   = "delta"
	FrameResults = "results"
	FrameError   = "error"
)

// QueryMessage is the client request on /ws/query.
type QueryMessage struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	Models         []string `json:"models,omitempty"`
	Content        string   `json:"content"`
}

type frame struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Model          string         `json:"model,omitempty"`
	Delta          string         `json:"delta,omitempty"`
	Results        core.ResultMap `json:"results,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// handleQuery upgrades the connection and runs one council query per
// received message, in order. Closing the connection cancels the query in
// flight.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.opts.AllowedOrigins)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Buffered so the reader keeps draining the socket, and notices a
	// disconnect, while a query runs.
	messages := make(chan QueryMessage, 16)
	go func() {
		defer cancel()
		defer close(messages)
		for {
			var msg QueryMessage
			if err := conn.ReadJSON(&msg); err != nil {
				var closeErr *websocket.CloseError
				if !errors.As(err, &closeErr) {
					s.opts.Logger.Debug("Websocket read ended", "error", err.Error())
				}
				return
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	fw := &frameWriter{conn: conn, timeout: s.opts.WriteTimeout}
	for msg := range messages {
		if err := s.runQuery(ctx, fw, msg); err != nil {
			s.opts.Logger.Debug("Websocket write failed", "error", err.Error())
			return
		}
	}
}

// runQuery executes one request and writes its frames. The returned error is
// a connection failure; query failures are reported as frames.
func (s *Server) runQuery(ctx context.Context, fw *frameWriter, msg QueryMessage) error {
	turns, err := s.history(ctx, msg)
	if err != nil {
		return fw.write(frame{Type: FrameError, ConversationID: msg.ConversationID, Error: err.Error()})
	}

	observer := func(model, text string) {
		if err := fw.write(frame{Type: FrameDelta, Model: model, Delta: text}); err != nil {
			s.opts.Logger.Debug("Delta write failed", "model", model, "error", err.Error())
		}
	}

	results, err := s.council.Query(ctx, msg.Models, turns, observer)
	if err != nil {
		return fw.write(frame{Type: FrameError, ConversationID: msg.ConversationID, Error: err.Error()})
	}

	if s.persist(msg) {
		if err := s.opts.Store.AddAssistantResults(ctx, msg.ConversationID, results); err != nil {
			s.opts.Logger.Error("Persist results failed", "conversation_id", msg.ConversationID, "error", err.Error())
		}
	}

	return fw.write(frame{Type: FrameResults, ConversationID: msg.ConversationID, Results: results})
}

func (s *Server) persist(msg QueryMessage) bool {
	return s.opts.Store != nil && msg.ConversationID != ""
}

// history builds the turns for msg. With persistence it loads the stored
// conversation, records the new user turn and titles a fresh conversation.
func (s *Server) history(ctx context.Context, msg QueryMessage) ([]core.Turn, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", core.ErrInvalidInput)
	}
	user := core.NewUserTurn(msg.Content)
	if !s.persist(msg) {
		return []core.Turn{user}, nil
	}

	conv, err := s.opts.Store.Get(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := s.opts.Store.AddUserMessage(ctx, conv.ID, msg.Content); err != nil {
		return nil, err
	}
	if len(conv.Messages) == 0 && conv.Title == storage.DefaultTitle {
		if err := s.opts.Store.UpdateTitle(ctx, conv.ID, titleFrom(msg.Content)); err != nil {
			s.opts.Logger.Warn("Update title failed", "conversation_id", conv.ID, "error", err.Error())
		}
	}
	return append(conv.Turns(), user), nil
}
