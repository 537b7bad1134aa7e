package service_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"

	"github.com/google/uuid"
)

// --- Category store ---

type fakeCategoryStore struct {
	mu         sync.Mutex
	cats       []domain.Category
	lists      int
	inserts    int
	deletes    [][]string
	listErr    error
	insertErr  error
	deleteErr  error
	insertWait chan struct{}
}

func (f *fakeCategoryStore) add(name string, typ domain.TransactionType) domain.Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := domain.Category{ID: uuid.NewString(), Name: name, Type: typ}
	f.cats = append(f.cats, c)
	return c
}

func (f *fakeCategoryStore) ListCategories(_ context.Context, ownerID string) ([]domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := append([]domain.Category(nil), f.cats...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeCategoryStore) GetCategory(_ context.Context, _ string, id string) (*domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cats {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "category", ID: id}
}

func (f *fakeCategoryStore) InsertCategories(_ context.Context, ownerID string, in []domain.NewCategory) ([]domain.Category, error) {
	if f.insertWait != nil {
		<-f.insertWait
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	out := make([]domain.Category, 0, len(in))
	for _, n := range in {
		c := domain.Category{ID: uuid.NewString(), UserID: ownerID, Name: n.Name, Type: n.Type, Icon: n.Icon}
		f.cats = append(f.cats, c)
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCategoryStore) DeleteCategories(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ids)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.cats[:0]
	for _, c := range f.cats {
		if !drop[c.ID] {
			kept = append(kept, c)
		}
	}
	f.cats = kept
	return nil
}

func (f *fakeCategoryStore) byName(name string) []domain.Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Category
	for _, c := range f.cats {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// --- Transaction store ---

type fakeTransactionStore struct {
	mu         sync.Mutex
	categories *fakeCategoryStore
	txs        []domain.Transaction // newest first
	listErr    error
	// failInsert, when set, decides whether an insert fails.
	failInsert func(*domain.NewTransaction) error
}

func newFakeTransactionStore(cats *fakeCategoryStore) *fakeTransactionStore {
	return &fakeTransactionStore{categories: cats}
}

func (f *fakeTransactionStore) ListTransactions(_ context.Context, _ string) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Transaction(nil), f.txs...), nil
}

func (f *fakeTransactionStore) InsertTransaction(ctx context.Context, ownerID string, in *domain.NewTransaction) (*domain.Transaction, error) {
	if f.failInsert != nil {
		if err := f.failInsert(in); err != nil {
			return nil, err
		}
	}

	var cat *domain.Category
	if f.categories != nil && in.CategoryID != "" {
		if c, err := f.categories.GetCategory(ctx, ownerID, in.CategoryID); err == nil {
			cat = c
		}
	}
	categoryID := in.CategoryID

	tx := domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Amount:      in.Amount,
		Description: in.Description,
		Date:        in.Date,
		CategoryID:  &categoryID,
		Category:    cat,
		FileURL:     in.FileURL,
		Currency:    in.Currency,
		CreatedAt:   time.Now(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append([]domain.Transaction{tx}, f.txs...)
	return &tx, nil
}

func (f *fakeTransactionStore) UpdateTransaction(_ context.Context, _ string, id string, upd *domain.TransactionUpdate) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.txs {
		if f.txs[i].ID != id {
			continue
		}
		if upd.Amount != nil {
			f.txs[i].Amount = *upd.Amount
		}
		if upd.Description != nil {
			f.txs[i].Description = *upd.Description
		}
		if upd.Date != nil {
			f.txs[i].Date = *upd.Date
		}
		tx := f.txs[i]
		return &tx, nil
	}
	return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
}

func (f *fakeTransactionStore) DeleteTransaction(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.txs {
		if f.txs[i].ID == id {
			f.txs = append(f.txs[:i], f.txs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeTransactionStore) withPrefix(prefix string) []domain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range f.txs {
		if strings.HasPrefix(tx.Description, prefix) {
			out = append(out, tx)
		}
	}
	return out
}

func (f *fakeTransactionStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.txs)
}

// --- Savings config store ---

type fakeConfigStore struct {
	mu      sync.Mutex
	initial domain.SavingsConfig
	byOwner map[string]domain.SavingsConfig
	getErr  error
	sets    int
}

// newFakeConfigStore starts every owner at cfg.
func newFakeConfigStore(cfg domain.SavingsConfig) *fakeConfigStore {
	return &fakeConfigStore{initial: cfg, byOwner: make(map[string]domain.SavingsConfig)}
}

func (f *fakeConfigStore) currentLocked(ownerID string) domain.SavingsConfig {
	if c, ok := f.byOwner[ownerID]; ok {
		return c
	}
	return f.initial
}

func (f *fakeConfigStore) Get(_ context.Context, ownerID string) (domain.SavingsConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.SavingsConfig{}, f.getErr
	}
	return f.currentLocked(ownerID), nil
}

func (f *fakeConfigStore) Set(_ context.Context, ownerID string, patch domain.SavingsConfigPatch) (domain.SavingsConfig, error) {
	if err := patch.Validate(); err != nil {
		return domain.SavingsConfig{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	next := patch.Apply(f.currentLocked(ownerID))
	f.byOwner[ownerID] = next
	return next, nil
}

func (f *fakeConfigStore) AddInvested(_ context.Context, ownerID string, delta float64) (domain.SavingsConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.currentLocked(ownerID)
	next.InvestedAmount = math.Round((next.InvestedAmount+delta)*100) / 100
	f.byOwner[ownerID] = next
	return next, nil
}

// --- Object storage ---

type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	removed  []string
	listed   []string
	err      error
	listResp []domain.StoredFile
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Upload(_ context.Context, path, _ string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.objects[path] = data
	return nil
}

func (f *fakeStorage) List(_ context.Context, prefix string, _, _ int) ([]domain.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, prefix)
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.StoredFile(nil), f.listResp...), nil
}

func (f *fakeStorage) PublicURL(path string) string {
	return "https://cdn.test/" + path
}

func (f *fakeStorage) Remove(_ context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, paths...)
	return nil
}

var errBackend = errors.New("backend unavailable")

// --- Profiles ---

type fakeProfileStore struct {
	mu       sync.Mutex
	profiles []domain.BizumRecipient // Code is the profile's bizum code
	sent     []domain.BizumTransfer
	tokens   []string
	sendErr  error
	lookups  int
}

func (f *fakeProfileStore) LookupByBizumCode(_ context.Context, code string) (*domain.BizumRecipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	for _, p := range f.profiles {
		if p.Code == code {
			p := p
			return &p, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "bizum code", ID: code}
}

func (f *fakeProfileStore) GetBizumCode(_ context.Context, ownerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.ID == ownerID {
			return p.Code, nil
		}
	}
	return "", &domain.ErrNotFound{Resource: "bizum code of profile", ID: ownerID}
}

func (f *fakeProfileStore) SendBizum(_ context.Context, accessToken string, t *domain.BizumTransfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, *t)
	f.tokens = append(f.tokens, accessToken)
	return nil
}
