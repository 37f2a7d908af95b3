package query

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/llmcouncil/backend"
	"github.com/hupe1980/llmcouncil/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockClient is a testify-driven backend.Client returning canned sessions.
type mockClient struct{ mock.Mock }

func (m *mockClient) Open(ctx context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	args := m.Called(ctx, cfg)
	sess, _ := args.Get(0).(backend.Session)
	return sess, args.Error(1)
}

func (m *mockClient) ListModels(ctx context.Context) ([]backend.ModelInfo, error) {
	args := m.Called(ctx)
	models, _ := args.Get(0).([]backend.ModelInfo)
	return models, args.Error(1)
}

// stubSession replays a fixed event list and counts releases.
type stubSession struct {
	events   []backend.Event
	closeErr error
	closes   atomic.Int32
}

func (s *stubSession) ID() string { return "stub" }

func (s *stubSession) Stream(context.Context, string) (<-chan backend.Event, error) {
	ch := make(chan backend.Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (s *stubSession) SendAndWait(context.Context, string) (*backend.Message, error) {
	return nil, errors.New("not scripted")
}

func (s *stubSession) Close() error {
	s.closes.Add(1)
	return s.closeErr
}

func userTurns(text string) []core.Turn { return []core.Turn{core.NewUserTurn(text)} }

func TestExecute_StreamingSuccess(t *testing.T) {
	client := backend.NewMockClient("m").SetScript("m", backend.Script{Deltas: []string{"Hel", "lo"}})
	exec := NewExecutor(client)

	var got []string
	res := exec.Execute(context.Background(), core.Request{Model: "m", Turns: userTurns("hi"), Streaming: true}, func(text string) {
		got = append(got, text)
	})

	require.True(t, res.OK(), "unexpected failure: %+v", res.Error)
	assert.Equal(t, "Hello", res.Text())
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.Equal(t, "m", res.Model)
	assert.Equal(t, 1, client.Closed("m"))
}

func TestExecute_SessionIdleCompletes(t *testing.T) {
	client := backend.NewMockClient().SetScript("m", backend.Script{Deltas: []string{"a", "b"}, Terminal: backend.EventSessionIdle})
	res := NewExecutor(client).Execute(context.Background(), core.Request{Model: "m", Turns: userTurns("x"), Streaming: true}, nil)
	require.True(t, res.OK())
	assert.Equal(t, "ab", res.Text())
}

func TestExecute_ErrorEvent(t *testing.T) {
	client := backend.NewMockClient().SetScript("m", backend.Script{
		Deltas:       []string{"half"},
		Terminal:     backend.EventError,
		ErrorMessage: "rate limited",
	})
	res := NewExecutor(client).Execute(context.Background(), core.Request{Model: "m", Turns: userTurns("x"), Streaming: true}, nil)

	assert.False(t, res.OK())
	assert.Nil(t, res.Content)
	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindBackendError, res.Error.Kind)
	assert.Equal(t, "rate limited", res.Error.Message)
	assert.ErrorIs(t, res.Error, core.ErrBackend)
	assert.Equal(t, 1, client.Closed("m"))
}

func TestExecute_StreamingTimeoutReleasesOnce(t *testing.T) {
	client := backend.NewMockClient().SetScript("m", backend.Script{Deltas: []string{"par"}, Hang: true})
	exec := NewExecutor(client)

	start := time.Now()
	res := exec.Execute(context.Background(), core.Request{
		Model:     "m",
		Turns:     userTurns("x"),
		Timeout:   50 * time.Millisecond,
		Streaming: true,
	}, nil)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotNil(t, res.Error)
	assert.Nil(t, res.Content)
	assert.Equal(t, core.KindTimeout, res.Error.Kind)
	assert.Equal(t, "timeout after 50ms", res.Error.Message)
	assert.Equal(t, "par", res.Partial)
	assert.Equal(t, 1, client.Closed("m"))
}

func TestExecute_NonStreaming(t *testing.T) {
	answer := "42"
	client := backend.NewMockClient().
		SetScript("ok", backend.Script{Response: &answer}).
		SetScript("empty", backend.Script{NoResponse: true}).
		SetScript("broken", backend.Script{SendErr: errors.New("connection reset")}).
		SetScript("slow", backend.Script{Hang: true})
	exec := NewExecutor(client, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	res := exec.Execute(context.Background(), core.Request{Model: "ok", Turns: userTurns("q")}, nil)
	require.True(t, res.OK())
	assert.Equal(t, "42", res.Text())

	res = exec.Execute(context.Background(), core.Request{Model: "empty", Turns: userTurns("q")}, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindNoResponse, res.Error.Kind)
	assert.Equal(t, "no response received", res.Error.Message)

	res = exec.Execute(context.Background(), core.Request{Model: "broken", Turns: userTurns("q")}, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindBackendError, res.Error.Kind)
	assert.Equal(t, "connection reset", res.Error.Message)

	res = exec.Execute(context.Background(), core.Request{Model: "slow", Turns: userTurns("q")}, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindTimeout, res.Error.Kind)

	for _, m := range []string{"ok", "empty", "broken", "slow"} {
		assert.Equal(t, 1, client.Closed(m), "model %s", m)
	}
}

func TestExecute_OpenFailures(t *testing.T) {
	client := backend.NewMockClient("known").
		SetScript("down", backend.Script{OpenErr: backend.Unavailable("mock", "no connection")})
	exec := NewExecutor(client)

	res := exec.Execute(context.Background(), core.Request{Model: "unknown", Turns: userTurns("q")}, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindSessionOpen, res.Error.Kind)
	assert.Contains(t, res.Error.Message, "not found")

	res = exec.Execute(context.Background(), core.Request{Model: "down", Turns: userTurns("q")}, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindBackendUnavailable, res.Error.Kind)

	res = NewExecutor(nil).Execute(context.Background(), core.Request{Model: "any", Turns: userTurns("q")}, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindBackendUnavailable, res.Error.Kind)
}

func TestExecute_CallbackPanicIsContained(t *testing.T) {
	client := backend.NewMockClient().SetScript("m", backend.Script{Deltas: []string{"a", "b"}})
	res := NewExecutor(client).Execute(context.Background(), core.Request{Model: "m", Turns: userTurns("x"), Streaming: true}, func(string) {
		panic("observer exploded")
	})

	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindInternal, res.Error.Kind)
	assert.Contains(t, res.Error.Message, "observer exploded")
	assert.Equal(t, "m", res.Model)
	assert.Equal(t, 1, client.Closed("m"))
}

func TestExecute_SessionPanicIsContained(t *testing.T) {
	client := backend.NewMockClient().SetScript("m", backend.Script{Panic: "driver bug"})
	res := NewExecutor(client).Execute(context.Background(), core.Request{Model: "m", Turns: userTurns("x")}, nil)

	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindInternal, res.Error.Kind)
	assert.Equal(t, 1, client.Closed("m"))
}

func TestExecute_IgnoresUnknownEvents(t *testing.T) {
	sess := &stubSession{events: []backend.Event{
		backend.DeltaEvent("Hel"),
		{Type: "assistant.reasoning_delta", Delta: "thinking"},
		backend.DeltaEvent("lo"),
		backend.MessageEvent("Hello"),
		backend.DeltaEvent("after terminal"),
	}, closeErr: fmt.Errorf("already closed")}
	client := &mockClient{}
	client.On("Open", mock.Anything, backend.SessionConfig{Model: "m", Streaming: true}).Return(sess, nil).Once()

	res := NewExecutor(client).Execute(context.Background(), core.Request{Model: "m", Turns: userTurns("x"), Streaming: true}, nil)

	require.True(t, res.OK())
	assert.Equal(t, "Hello", res.Text())
	assert.Equal(t, int32(1), sess.closes.Load())
	client.AssertExpectations(t)
}

func TestExecute_StreamEndsWithoutTerminal(t *testing.T) {
	sess := &stubSession{events: []backend.Event{backend.DeltaEvent("dangling")}}
	client := &mockClient{}
	client.On("Open", mock.Anything, mock.Anything).Return(sess, nil)

	res := NewExecutor(client).Execute(context.Background(), core.Request{Model: "m", Turns: userTurns("x"), Streaming: true}, nil)

	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindNoResponse, res.Error.Kind)
	assert.Equal(t, "dangling", res.Partial)
	assert.Equal(t, int32(1), sess.closes.Load())
}

func TestExecute_ParentCancellation(t *testing.T) {
	client := backend.NewMockClient().SetScript("m", backend.Script{Hang: true})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := NewExecutor(client).Execute(ctx, core.Request{Model: "m", Turns: userTurns("x"), Streaming: true}, nil)

	require.NotNil(t, res.Error)
	assert.Equal(t, core.KindCanceled, res.Error.Kind)
	assert.Equal(t, 1, client.Closed("m"))
}

func TestExecute_FormatsTranscript(t *testing.T) {
	client := backend.NewMockClient()
	turns := []core.Turn{core.NewSystemTurn("S"), core.NewUserTurn("U")}
	res := NewExecutor(client).Execute(context.Background(), core.Request{Model: "echo", Turns: turns}, nil)
	require.True(t, res.OK())
	assert.Equal(t, "Mock response to: System: S\n\nUser: U", res.Text())
}
