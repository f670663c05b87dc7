package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scontrini/internal/core"
	"scontrini/internal/llm"
	"scontrini/internal/receipt"
	"scontrini/internal/store"
	"scontrini/internal/store/memory"
)

type fakeExtractor struct {
	mu    sync.Mutex
	items []receipt.RawItem
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context, string, []core.Category) ([]receipt.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.items, f.err
}

type staticLLM struct{ reply string }

func (s staticLLM) Generate(context.Context, llm.Request) (string, error) { return s.reply, nil }
func (staticLLM) Close() error                                          { return nil }

type receiptFixture struct {
	svc       *ReceiptService
	store     *memory.Store
	extractor *fakeExtractor
}

func newReceiptFixture(t *testing.T, cats []core.Category, items ...receipt.RawItem) receiptFixture {
	t.Helper()
	st := memory.New(cats)
	ex := &fakeExtractor{items: items}
	expenses := NewExpenseService(st, nil)
	expenses.SetClock(func() time.Time { return commitTime })
	svc := NewReceiptService(
		receipt.NewPipeline(ex),
		receipt.NewSuggester(staticLLM{reply: `{"categoryId":"grocery"}`}, time.Minute),
		NewCategoryService(st),
		expenses,
		time.Minute,
	)
	return receiptFixture{svc: svc, store: st, extractor: ex}
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

func TestReceiptService_ScanAndCommit(t *testing.T) {
	ctx := context.Background()
	f := newReceiptFixture(t, categories("grocery", "other"),
		receipt.RawItem{Description: "Milk", Amount: cents(350), CategoryID: "nonexistent"},
		receipt.RawItem{Description: "Bread", Amount: cents(200), CategoryID: "grocery"},
	)

	res, err := f.svc.Scan(ctx, "image/png", pngBytes)
	require.NoError(t, err)
	require.Equal(t, receipt.StatusItems, res.Status)
	require.Len(t, res.Review.Items, 2)
	assert.Equal(t, "other", res.Review.Remaining()[0].CategoryID)

	created, err := f.svc.Commit(ctx, res.Review.ID)
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, e := range created {
		assert.True(t, e.Date.Equal(commitTime))
	}

	_, err = f.svc.Review(res.Review.ID)
	assert.ErrorIs(t, err, ErrReviewNotFound, "session closes after commit")

	stored, err := f.store.ListExpenses(ctx, store.ExpenseFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestReceiptService_NoItems(t *testing.T) {
	f := newReceiptFixture(t, categories("other"))

	res, err := f.svc.Scan(context.Background(), "image/png", pngBytes)

	require.NoError(t, err)
	assert.Equal(t, receipt.StatusNoItems, res.Status)
	assert.Empty(t, res.Review.ID)
	assert.Zero(t, f.svc.Reviews().Size())
}

func TestReceiptService_ScanRejectsBeforeExtraction(t *testing.T) {
	t.Run("no categories", func(t *testing.T) {
		f := newReceiptFixture(t, nil, receipt.RawItem{Description: "Milk", Amount: cents(350)})

		_, err := f.svc.Scan(context.Background(), "image/png", pngBytes)

		assert.ErrorIs(t, err, receipt.ErrNoCategories)
		assert.Zero(t, f.extractor.calls)
	})

	t.Run("unsupported type", func(t *testing.T) {
		f := newReceiptFixture(t, categories("other"))

		_, err := f.svc.Scan(context.Background(), "text/plain", []byte("hello"))

		assert.ErrorIs(t, err, receipt.ErrUnsupportedType)
		assert.Zero(t, f.extractor.calls)
	})
}

func TestReceiptService_ReviewTransitions(t *testing.T) {
	ctx := context.Background()
	f := newReceiptFixture(t, categories("grocery", "other"),
		receipt.RawItem{Description: "Milk", Amount: cents(350), CategoryID: "grocery"},
		receipt.RawItem{Description: "Bag", Amount: cents(10), CategoryID: "other"},
	)
	res, err := f.svc.Scan(ctx, "image/png", pngBytes)
	require.NoError(t, err)
	id := res.Review.ID

	r, err := f.svc.Transition(ctx, id, 0, ActionEdit, nil)
	require.NoError(t, err)
	assert.Equal(t, "editing", receipt.StateName(r.Items[0]))

	_, err = f.svc.Commit(ctx, id)
	assert.ErrorIs(t, err, receipt.ErrStillEditing)

	bad := core.ExtractedItem{Description: "Milk", Amount: cents(-1), CategoryID: "grocery"}
	_, err = f.svc.Transition(ctx, id, 0, ActionSave, &bad)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	r, err = f.svc.Review(id)
	require.NoError(t, err)
	assert.Equal(t, "editing", receipt.StateName(r.Items[0]), "failed save keeps editing")

	good := core.ExtractedItem{Description: "Whole milk", Amount: cents(399), CategoryID: "grocery"}
	r, err = f.svc.Transition(ctx, id, 0, ActionSave, &good)
	require.NoError(t, err)
	assert.Equal(t, receipt.Display{Item: good}, r.Items[0])

	r, err = f.svc.Transition(ctx, id, 1, ActionRemove, nil)
	require.NoError(t, err)
	assert.Equal(t, cents(399), r.Total())

	_, err = f.svc.Transition(ctx, id, 1, ActionEdit, nil)
	assert.ErrorIs(t, err, receipt.ErrInvalidTransition)

	_, err = f.svc.Transition(ctx, id, 5, ActionEdit, nil)
	assert.ErrorIs(t, err, receipt.ErrItemIndex)

	_, err = f.svc.Transition(ctx, id, 0, ReviewAction("explode"), nil)
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = f.svc.Transition(ctx, "missing", 0, ActionEdit, nil)
	assert.ErrorIs(t, err, ErrReviewNotFound)

	created, err := f.svc.Commit(ctx, id)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Whole milk", created[0].Description)
}

func TestReceiptService_CommitRevalidatesCategories(t *testing.T) {
	ctx := context.Background()
	f := newReceiptFixture(t, categories("grocery", "other"),
		receipt.RawItem{Description: "Milk", Amount: cents(350), CategoryID: "grocery"},
	)
	res, err := f.svc.Scan(ctx, "image/png", pngBytes)
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteCategory(ctx, "grocery"))

	_, err = f.svc.Commit(ctx, res.Review.ID)
	var itemErr *receipt.ItemError
	require.True(t, errors.As(err, &itemErr), "got %v", err)
	assert.Equal(t, "Milk", itemErr.Description)

	_, err = f.svc.Review(res.Review.ID)
	assert.NoError(t, err, "session survives a failed commit")
}

func TestReceiptService_Suggest(t *testing.T) {
	f := newReceiptFixture(t, categories("grocery", "other"))

	id, ok := f.svc.Suggest(context.Background(), "bananas")
	assert.True(t, ok)
	assert.Equal(t, "grocery", id)

	_, ok = f.svc.Suggest(context.Background(), "  ")
	assert.False(t, ok)
}

// gatedStore holds AddExpensesBatch until release is closed.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) AddExpensesBatch(ctx context.Context, drafts []core.ExpenseDraft) ([]core.Expense, error) {
	close(g.entered)
	<-g.release
	return g.Store.AddExpensesBatch(ctx, drafts)
}

func TestReceiptService_ConcurrentCommitStoresOnce(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(categories("grocery", "other"))
	gate := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewReceiptService(
		receipt.NewPipeline(&fakeExtractor{items: []receipt.RawItem{
			{Description: "Milk", Amount: cents(350), CategoryID: "grocery"},
		}}),
		receipt.NewSuggester(staticLLM{}, 0),
		NewCategoryService(mem),
		NewExpenseService(gate, nil),
		time.Minute,
	)
	res, err := svc.Scan(ctx, "image/png", pngBytes)
	require.NoError(t, err)

	type outcome struct {
		created []core.Expense
		err     error
	}
	first := make(chan outcome, 1)
	go func() {
		created, err := svc.Commit(ctx, res.Review.ID)
		first <- outcome{created, err}
	}()

	<-gate.entered
	_, err = svc.Commit(ctx, res.Review.ID)
	assert.ErrorIs(t, err, ErrReviewNotFound, "a review being committed cannot be committed again")

	close(gate.release)
	got := <-first
	require.NoError(t, got.err)
	assert.Len(t, got.created, 1)

	stored, err := mem.ListExpenses(ctx, store.ExpenseFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	_, err = svc.Review(res.Review.ID)
	assert.ErrorIs(t, err, ErrReviewNotFound)
}

func TestReceiptService_FailedStoreKeepsSession(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(categories("grocery", "other"))
	svc := NewReceiptService(
		receipt.NewPipeline(&fakeExtractor{items: []receipt.RawItem{
			{Description: "Milk", Amount: cents(350), CategoryID: "grocery"},
		}}),
		receipt.NewSuggester(staticLLM{}, 0),
		NewCategoryService(mem),
		NewExpenseService(failingStore{Store: mem}, nil),
		time.Minute,
	)
	res, err := svc.Scan(ctx, "image/png", pngBytes)
	require.NoError(t, err)

	_, err = svc.Commit(ctx, res.Review.ID)
	require.Error(t, err)

	r, err := svc.Review(res.Review.ID)
	require.NoError(t, err, "session is restored after a store failure")
	assert.Len(t, r.Remaining(), 1)
}
