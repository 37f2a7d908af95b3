package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/hupe1980/llmcouncil/core"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// progress renders a single status line with the number of characters
// streamed so far per model. observe is called concurrently.
type progress struct {
	mu    sync.Mutex
	w     io.Writer
	chars map[string]int
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w, chars: make(map[string]int)}
}

func (p *progress) observe(model, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chars[model] += len([]rune(text))
	p.render()
}

func (p *progress) render() {
	models := make([]string, 0, len(p.chars))
	for m := range p.chars {
		models = append(models, m)
	}
	sort.Strings(models)
	parts := make([]string, 0, len(models))
	for _, m := range models {
		parts = append(parts, fmt.Sprintf("%s %d", m, p.chars[m]))
	}
	fmt.Fprintf(p.w, "\r\033[Kstreaming: %s", strings.Join(parts, " | "))
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.chars) > 0 {
		fmt.Fprint(p.w, "\r\033[K")
	}
}

// printResults writes every result under a model header in model id order.
func printResults(w io.Writer, results core.ResultMap) {
	for _, model := range results.Models() {
		r := results[model]
		fmt.Fprintf(w, "== %s (%s)\n", model, r.Duration.Round(time.Millisecond))
		if r.OK() {
			fmt.Fprintln(w, r.Text())
		} else {
			fmt.Fprintf(w, "error [%s]: %s\n", r.Error.Kind, r.Error.Message)
		}
		fmt.Fprintln(w)
	}
}
