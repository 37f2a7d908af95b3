package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/llmcouncil/backend"
	"github.com/hupe1980/llmcouncil/core"
	"github.com/hupe1980/llmcouncil/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector is a concurrency-safe observer recording fragments per model.
type collector struct {
	mu     sync.Mutex
	deltas map[string][]string
}

func newCollector() *collector { return &collector{deltas: map[string][]string{}} }

func (c *collector) observe(model, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deltas[model] = append(c.deltas[model], text)
}

func (c *collector) get(model string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deltas[model]
}

var hello = []core.Turn{core.NewUserTurn("hello")}

func TestRunParallel_KeySetMatchesRequest(t *testing.T) {
	client := backend.NewMockClient("a", "b", "c")
	orch := New(client)

	res, err := orch.RunParallel(context.Background(), []string{"a", "b", "c", "missing", "a"}, hello, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "missing"}, res.Models())
	assert.Equal(t, []string{"missing"}, res.Failed())
	for model, r := range res {
		assert.Equal(t, model, r.Model)
		assert.True(t, (r.Content == nil) != (r.Error == nil), "exactly one of content/error for %s", model)
	}
	assert.Equal(t, 1, client.Opened("a"), "duplicates collapse into one query")
}

func TestRunParallel_InvalidInput(t *testing.T) {
	client := backend.NewMockClient()
	orch := New(client)

	_, err := orch.RunParallel(context.Background(), nil, hello, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = orch.RunParallel(context.Background(), []string{"a"}, nil, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = orch.RunParallel(context.Background(), []string{"a"}, []core.Turn{{Role: "robot", Content: "x"}}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	assert.Equal(t, 0, client.Opened("a"), "no session is opened for invalid input")
}

func TestRunParallel_ObserverTaggedDeltas(t *testing.T) {
	client := backend.NewMockClient().
		SetScript("gpt-5", backend.Script{Deltas: []string{"Hel", "lo"}}).
		SetScript("claude-sonnet-4.5", backend.Script{Deltas: []string{"Bon", "jour"}})
	coll := newCollector()

	res, err := New(client).RunParallel(context.Background(), []string{"gpt-5", "claude-sonnet-4.5"}, hello, coll.observe)
	require.NoError(t, err)

	assert.Equal(t, "Hello", res["gpt-5"].Text())
	assert.Equal(t, "Bonjour", res["claude-sonnet-4.5"].Text())
	assert.Equal(t, []string{"Hel", "lo"}, coll.get("gpt-5"))
	assert.Equal(t, []string{"Bon", "jour"}, coll.get("claude-sonnet-4.5"))
}

func TestRunParallel_NoObserverUsesSingleResponse(t *testing.T) {
	client := backend.NewMockClient().SetScript("m", backend.Script{Deltas: []string{"x", "y"}})
	res, err := New(client).RunParallel(context.Background(), []string{"m"}, hello, nil)
	require.NoError(t, err)
	assert.Equal(t, "xy", res["m"].Text())
}

func TestRunParallel_IndependentOutcomes(t *testing.T) {
	client := backend.NewMockClient().
		SetScript("fast", testutil.NewScriptBuilder().Stream("ok").Build()).
		SetScript("stuck", testutil.NewScriptBuilder().Hang().Build()).
		SetScript("failing", testutil.NewScriptBuilder().Every(100*time.Millisecond).Fail("model overloaded").Build())
	orch := New(client, func(o *Options) { o.Timeout = 300 * time.Millisecond })
	coll := newCollector()

	start := time.Now()
	res, err := orch.RunParallel(context.Background(), []string{"fast", "stuck", "failing"}, hello, coll.observe)
	elapsed := time.Since(start)
	require.NoError(t, err)

	require.Len(t, res, 3)
	assert.Equal(t, "ok", res["fast"].Text())

	require.NotNil(t, res["stuck"].Error)
	assert.Equal(t, core.KindTimeout, res["stuck"].Error.Kind)

	require.NotNil(t, res["failing"].Error)
	assert.Equal(t, core.KindBackendError, res["failing"].Error.Kind)
	assert.Equal(t, "model overloaded", res["failing"].Error.Message)

	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond+300*time.Millisecond, "bounded by the slowest query, not the sum")

	for _, m := range []string{"fast", "stuck", "failing"} {
		assert.Equal(t, 1, client.Closed(m), "session of %s released once", m)
	}
}

func TestRunParallel_RunsConcurrently(t *testing.T) {
	client := backend.NewMockClient()
	models := []string{"a", "b", "c", "d"}
	for _, m := range models {
		client.SetScript(m, backend.Script{Delay: 200 * time.Millisecond})
	}

	start := time.Now()
	res, err := New(client).RunParallel(context.Background(), models, hello, nil)
	require.NoError(t, err)

	assert.Len(t, res.Succeeded(), 4)
	assert.Less(t, time.Since(start), 600*time.Millisecond)
}

func TestRunParallel_HistoryIsSharedVerbatim(t *testing.T) {
	client := backend.NewMockClient()
	turns := testutil.NewTurnBuilder().System("S").User("U").Assistant("A").User("again").Build()

	res, err := New(client).RunParallel(context.Background(), []string{"a", "b"}, turns, nil)
	require.NoError(t, err)

	want := "Mock response to: System: S\n\nUser: U\n\nAssistant: A\n\nUser: again"
	assert.Equal(t, want, res["a"].Text())
	assert.Equal(t, want, res["b"].Text())
}

func TestQuery_SingleModel(t *testing.T) {
	client := backend.NewMockClient().SetScript("m", backend.Script{Deltas: []string{"1", "2"}})
	var got []string
	res := New(client).Query(context.Background(), core.Request{Model: "m", Turns: hello, Streaming: true}, func(s string) { got = append(got, s) })
	require.True(t, res.OK())
	assert.Equal(t, "12", res.Text())
	assert.Equal(t, []string{"1", "2"}, got)
}
