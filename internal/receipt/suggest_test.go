package receipt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"scontrini/internal/cache"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		err        error
		categories []string
		wantID     string
		wantOK     bool
	}{
		{"valid suggestion", `{"categoryId":"grocery"}`, nil, []string{"grocery", "other"}, "grocery", true},
		{"fenced", "```json\n{\"categoryId\":\"books\"}\n```", nil, []string{"books"}, "books", true},
		{"unknown id falls back to other", `{"categoryId":"pets"}`, nil, []string{"grocery", "other"}, "other", true},
		{"unknown id without other", `{"categoryId":"pets"}`, nil, []string{"grocery"}, "", false},
		{"explicit null", `{"categoryId":null}`, nil, []string{"grocery", "other"}, "", false},
		{"garbage", `maybe groceries?`, nil, []string{"grocery", "other"}, "", false},
		{"remote failure", "", errors.New("timeout"), []string{"grocery", "other"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLLM{reply: tt.reply, err: tt.err}
			id, ok := NewSuggester(fake, 0).Suggest(context.Background(), "Whole milk", cats(tt.categories...))
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestSuggestEmptyDescriptionSkipsModel(t *testing.T) {
	fake := &fakeLLM{reply: `{"categoryId":"grocery"}`}
	_, ok := NewSuggester(fake, time.Minute).Suggest(context.Background(), "   ", cats("grocery"))
	assert.False(t, ok)
	assert.Zero(t, fake.Calls())
}

func TestSuggestCachesPerCategorySet(t *testing.T) {
	fake := &fakeLLM{reply: `{"categoryId":"grocery"}`}
	s := NewSuggester(fake, time.Minute)
	ctx := context.Background()

	s.Suggest(ctx, "Milk", cats("grocery", "other"))
	s.Suggest(ctx, "milk", cats("grocery", "other"))
	assert.Equal(t, 1, fake.Calls())

	s.Suggest(ctx, "Milk", cats("grocery"))
	assert.Equal(t, 2, fake.Calls(), "a different category set is a different question")

	fake.err = errors.New("down")
	s.Suggest(ctx, "Eggs", cats("grocery"))
	fake.err = nil
	s.Suggest(ctx, "Eggs", cats("grocery"))
	assert.Equal(t, 4, fake.Calls(), "failures are not cached")
}

func TestSuggestWithoutCacheIsSweepable(t *testing.T) {
	fake := &fakeLLM{reply: `{"categoryId":"grocery"}`}
	s := NewSuggester(fake, 0)

	m := cache.NewManager()
	m.Register("suggestions", s.Cache())
	assert.NotPanics(t, func() {
		m.Sweep()
		assert.Zero(t, m.Sizes()["suggestions"])
	})

	s.Suggest(context.Background(), "Milk", cats("grocery"))
	s.Suggest(context.Background(), "Milk", cats("grocery"))
	assert.Equal(t, 2, fake.Calls(), "a zero ttl asks the model every time")
}
