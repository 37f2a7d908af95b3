package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/llmcouncil/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "council.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, conv.Title)

	got, err := s.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", got.ID)
	assert.Equal(t, DefaultTitle, got.Title)
	assert.Empty(t, got.Messages)
}

func TestStore_CreateGeneratesID(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.Create(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_MessagesAndResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "c")
	require.NoError(t, err)

	results := core.ResultMap{
		"b": core.Success("b", "answer from b"),
		"a": core.Failure("a", core.TimeoutError(2*time.Second)),
		"c": core.Success("c", "answer from c"),
	}
	require.NoError(t, s.AddUserMessage(ctx, "c", "What is Go?"))
	require.NoError(t, s.AddAssistantResults(ctx, "c", results))

	conv, err := s.Get(ctx, "c")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)

	user := conv.Messages[0]
	assert.Equal(t, core.RoleUser, user.Role)
	assert.Equal(t, "What is Go?", user.Content)
	assert.Nil(t, user.Results)

	assistant := conv.Messages[1]
	assert.Equal(t, core.RoleAssistant, assistant.Role)
	assert.Equal(t, "answer from b", assistant.Content)
	require.Len(t, assistant.Results, 3)
	assert.Equal(t, "answer from c", assistant.Results["c"].Text())
	require.NotNil(t, assistant.Results["a"].Error)
	assert.Equal(t, core.KindTimeout, assistant.Results["a"].Error.Kind)
	assert.Equal(t, "timeout after 2s", assistant.Results["a"].Error.Message)
	assert.ErrorIs(t, assistant.Results["a"].Error, core.ErrTimeout)
}

func TestStore_AddToMissingConversation(t *testing.T) {
	s := newTestStore(t)
	err := s.AddUserMessage(context.Background(), "ghost", "hi")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "c")
	require.NoError(t, err)

	require.NoError(t, s.UpdateTitle(ctx, "c", "Go questions"))
	conv, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "Go questions", conv.Title)

	assert.ErrorIs(t, s.UpdateTitle(ctx, "missing", "x"), ErrNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "first")
	require.NoError(t, err)
	_, err = s.Create(ctx, "second")
	require.NoError(t, err)
	require.NoError(t, s.AddUserMessage(ctx, "first", "one"))
	require.NoError(t, s.AddUserMessage(ctx, "first", "two"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].ID)
	assert.Equal(t, 0, list[0].MessageCount)
	assert.Equal(t, "first", list[1].ID)
	assert.Equal(t, 2, list[1].MessageCount)
}

func TestStore_ListEmpty(t *testing.T) {
	s := newTestStore(t)
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConversation_Turns(t *testing.T) {
	conv := Conversation{Messages: []Message{
		{Role: core.RoleUser, Content: "q1"},
		{Role: core.RoleAssistant, Content: "a1"},
		{Role: core.RoleUser, Content: "q2"},
		{Role: core.RoleAssistant, Content: ""},
		{Role: core.RoleUser, Content: "q3"},
	}}

	assert.Equal(t, []core.Turn{
		core.NewUserTurn("q1"),
		core.NewAssistantTurn("a1"),
		core.NewUserTurn("q2"),
		core.NewUserTurn("q3"),
	}, conv.Turns())
}
