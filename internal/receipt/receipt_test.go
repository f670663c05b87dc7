package receipt

import (
	"context"
	"sync"

	"scontrini/internal/core"
	"scontrini/internal/llm"
)

// fakeLLM answers every Generate call with a fixed reply.
type fakeLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	last  llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return f.reply, f.err
}

func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func cats(ids ...string) []core.Category {
	out := make([]core.Category, len(ids))
	for i, id := range ids {
		out[i] = core.Category{ID: id, Name: id}
	}
	return out
}

func money(cents int64) core.Money { return core.Money{Cents: cents} }
