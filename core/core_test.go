package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTurns(t *testing.T) {
	assert.ErrorIs(t, ValidateTurns(nil), ErrInvalidInput)
	assert.ErrorIs(t, ValidateTurns([]Turn{{Role: "tool", Content: "x"}}), ErrInvalidInput)
	assert.NoError(t, ValidateTurns([]Turn{NewSystemTurn("S"), NewUserTurn("U"), NewAssistantTurn("A")}))
}

func TestNormalizeModels(t *testing.T) {
	models, err := NormalizeModels([]string{"gpt-5", " claude-sonnet-4 ", "gpt-5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-5", "claude-sonnet-4"}, models)

	_, err = NormalizeModels(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NormalizeModels([]string{"gpt-5", "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRequest_EffectiveTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, Request{Timeout: 5 * time.Second}.EffectiveTimeout(time.Minute))
	assert.Equal(t, time.Minute, Request{}.EffectiveTimeout(time.Minute))
	assert.Equal(t, DefaultTimeout, Request{}.EffectiveTimeout(0))
}

func TestObserverFunc_Bind(t *testing.T) {
	var gotModel, gotText string
	obs := ObserverFunc(func(model, text string) { gotModel, gotText = model, text })
	obs.Bind("gpt-5")("Hel")
	assert.Equal(t, "gpt-5", gotModel)
	assert.Equal(t, "Hel", gotText)

	var nilObs ObserverFunc
	assert.Nil(t, nilObs.Bind("gpt-5"))
}

func TestResult_Exclusivity(t *testing.T) {
	ok := Success("m", "hello")
	assert.True(t, ok.OK())
	assert.Equal(t, "hello", ok.Text())
	assert.Nil(t, ok.Error)

	empty := Success("m", "")
	assert.True(t, empty.OK(), "empty content is still a success")

	failed := Failure("m", errors.New("boom"))
	assert.False(t, failed.OK())
	assert.Nil(t, failed.Content)
	require.NotNil(t, failed.Error)
	assert.Equal(t, KindInternal, failed.Error.Kind)
	assert.Equal(t, "boom", failed.Error.Message)

	noReason := Failure("m", nil)
	require.NotNil(t, noReason.Error)
	assert.Nil(t, noReason.Content)
}

func TestQueryError_Classification(t *testing.T) {
	qe := AsQueryError(fmt.Errorf("open: %w", ErrBackendUnavailable), KindSessionOpen)
	assert.Equal(t, KindBackendUnavailable, qe.Kind)
	assert.ErrorIs(t, qe, ErrBackendUnavailable)

	qe = AsQueryError(errors.New("unknown model"), KindSessionOpen)
	assert.Equal(t, KindSessionOpen, qe.Kind)
	assert.ErrorIs(t, qe, ErrSessionOpen)
	assert.NotErrorIs(t, qe, ErrTimeout)

	qe = AsQueryError(context.Canceled, KindInternal)
	assert.Equal(t, KindCanceled, qe.Kind)

	wrapped := fmt.Errorf("outer: %w", TimeoutError(2*time.Second))
	qe = AsQueryError(wrapped, KindInternal)
	assert.Equal(t, KindTimeout, qe.Kind)
	assert.Equal(t, "timeout after 2s", qe.Message)
	assert.ErrorIs(t, qe, context.DeadlineExceeded)

	assert.Nil(t, AsQueryError(nil, KindInternal))
}

func TestResultMap_Partitions(t *testing.T) {
	m := ResultMap{
		"b": Success("b", "x"),
		"a": Failure("a", NewQueryError(KindTimeout, "timeout after 1s", nil)),
		"c": Success("c", "y"),
	}
	assert.Equal(t, []string{"a", "b", "c"}, m.Models())
	assert.Equal(t, []string{"b", "c"}, m.Succeeded())
	assert.Equal(t, []string{"a"}, m.Failed())
}
