package receipt

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"scontrini/internal/cache"
	"scontrini/internal/core"
	"scontrini/internal/llm"
)

// Suggester proposes a category for a single expense description.
type Suggester struct {
	client llm.Client
	cache  *cache.LRUCache[string]
}

// NewSuggester caches answers for ttl. A zero ttl disables caching.
func NewSuggester(client llm.Client, ttl time.Duration) *Suggester {
	s := &Suggester{client: client}
	if ttl > 0 {
		s.cache = cache.NewLRUCache[string](512, ttl)
	}
	return s
}

// Cache exposes the suggestion cache so it can be swept periodically.
func (s *Suggester) Cache() *cache.LRUCache[string] {
	return s.cache
}

// Suggest returns a category id from categories, or false when there is no
// usable suggestion. It never fails: model errors are logged and yield false.
func (s *Suggester) Suggest(ctx context.Context, description string, categories []core.Category) (string, bool) {
	description = strings.TrimSpace(description)
	if description == "" || len(categories) == 0 {
		return "", false
	}

	key := suggestionKey(description, categories)
	if s.cache != nil {
		if id, ok := s.cache.Get(key); ok {
			return id, id != ""
		}
	}

	text, err := s.client.Generate(ctx, llm.Request{
		System: suggestionSystem,
		Prompt: SuggestionPrompt(description, categories),
		JSON:   true,
	})
	if err != nil {
		slog.WarnContext(ctx, "Category suggestion failed", "component", "receipt", "error", err)
		return "", false
	}

	id := resolveSuggestion(ctx, text, categories)
	if s.cache != nil {
		s.cache.Set(key, id)
	}
	return id, id != ""
}

// resolveSuggestion maps the model answer onto categories. Unknown ids fall
// back to the "other" category when it exists.
func resolveSuggestion(ctx context.Context, text string, categories []core.Category) string {
	var out struct {
		CategoryID *string `json:"categoryId"`
	}
	if err := json.Unmarshal([]byte(llm.CleanJSON(text)), &out); err != nil {
		slog.WarnContext(ctx, "Unparseable category suggestion", "component", "receipt", "error", err)
		return ""
	}
	if out.CategoryID == nil {
		return ""
	}
	id := strings.TrimSpace(*out.CategoryID)
	if core.HasCategory(categories, id) {
		return id
	}
	slog.WarnContext(ctx, "Suggested category not in list", "component", "receipt", "category_id", id)
	other, _ := core.OtherCategory(categories)
	return other
}

func suggestionKey(description string, categories []core.Category) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(description))
	for _, c := range categories {
		b.WriteByte('|')
		b.WriteString(c.ID)
		b.WriteByte('=')
		b.WriteString(c.Name)
	}
	return b.String()
}
