package core

import (
	"sort"
	"time"
)

// Result is the terminal outcome of one query. Exactly one of Content and
// Error is set.
type Result struct {
	Model    string        `json:"model"`
	Content  *string       `json:"content"`
	Error    *QueryError   `json:"error,omitempty"`
	Partial  string        `json:"partial,omitempty"` // streamed text received before a failure; diagnostic only
	Duration time.Duration `json:"duration,omitempty"`
}

// Success builds a successful Result.
func Success(model, content string) Result {
	return Result{Model: model, Content: &content}
}

// Failure builds a failed Result. A nil err is recorded as an internal fault
// so that the exclusivity of Content and Error always holds.
func Failure(model string, err error) Result {
	qe := AsQueryError(err, KindInternal)
	if qe == nil {
		qe = NewQueryError(KindInternal, "query failed without a reason", nil)
	}
	return Result{Model: model, Error: qe}
}

// OK reports whether the query succeeded.
func (r Result) OK() bool { return r.Content != nil && r.Error == nil }

// Text returns the content of a successful Result or the empty string.
func (r Result) Text() string {
	if r.Content == nil {
		return ""
	}
	return *r.Content
}

// ResultMap maps model identifiers to their terminal Result.
type ResultMap map[string]Result

// Models returns the sorted key set.
func (m ResultMap) Models() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Succeeded returns the sorted models whose query succeeded.
func (m ResultMap) Succeeded() []string { return m.filter(true) }

// Failed returns the sorted models whose query failed.
func (m ResultMap) Failed() []string { return m.filter(false) }

func (m ResultMap) filter(ok bool) []string {
	out := []string{}
	for _, k := range m.Models() {
		if m[k].OK() == ok {
			out = append(out, k)
		}
	}
	return out
}
