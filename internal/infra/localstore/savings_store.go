package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/boddenberg/finanzas-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// SavingsEntry prefixes the entries holding the savings configuration.
const SavingsEntry = "savings-storage"

// SavingsEntryFor returns the entry name of the owner's configuration.
func SavingsEntryFor(ownerID string) string {
	return SavingsEntry + ":" + ownerID
}

// SavingsStore implements port.SavingsConfigStore on top of KV, one entry
// per owner. Loaded snapshots are kept in memory so a Set is visible to
// the next Get without a database round trip.
type SavingsStore struct {
	kv     *KV
	logger *zap.Logger

	mu  sync.Mutex
	cur map[string]domain.SavingsConfig
}

// NewSavingsStore creates the store. Entries are read lazily.
func NewSavingsStore(kv *KV, logger *zap.Logger) *SavingsStore {
	return &SavingsStore{kv: kv, logger: logger, cur: make(map[string]domain.SavingsConfig)}
}

// Get returns the owner's configuration, or the defaults when nothing was
// persisted yet.
func (s *SavingsStore) Get(ctx context.Context, ownerID string) (domain.SavingsConfig, error) {
	if ownerID == "" {
		return domain.SavingsConfig{}, &domain.ErrNotAuthenticated{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadLocked(ctx, ownerID)
	if err != nil {
		return domain.SavingsConfig{}, err
	}
	return copyConfig(cfg), nil
}

// Set validates and merges patch into the owner's configuration.
func (s *SavingsStore) Set(ctx context.Context, ownerID string, patch domain.SavingsConfigPatch) (domain.SavingsConfig, error) {
	if ownerID == "" {
		return domain.SavingsConfig{}, &domain.ErrNotAuthenticated{}
	}
	if err := patch.Validate(); err != nil {
		return domain.SavingsConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.loadLocked(ctx, ownerID)
	if err != nil {
		return domain.SavingsConfig{}, err
	}
	next := patch.Apply(cur)
	if patch.InvestedAmount != nil {
		next.InvestedAmount = round2(next.InvestedAmount)
	}
	if err := s.saveLocked(ctx, ownerID, next); err != nil {
		return domain.SavingsConfig{}, err
	}
	return copyConfig(next), nil
}

// AddInvested adds delta to the owner's cached invested amount in a single
// read-modify-write, so concurrent callers never lose an increment.
func (s *SavingsStore) AddInvested(ctx context.Context, ownerID string, delta float64) (domain.SavingsConfig, error) {
	if ownerID == "" {
		return domain.SavingsConfig{}, &domain.ErrNotAuthenticated{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.loadLocked(ctx, ownerID)
	if err != nil {
		return domain.SavingsConfig{}, err
	}
	next.InvestedAmount = round2(next.InvestedAmount + delta)
	if err := s.saveLocked(ctx, ownerID, next); err != nil {
		return domain.SavingsConfig{}, err
	}
	return copyConfig(next), nil
}

func (s *SavingsStore) loadLocked(ctx context.Context, ownerID string) (domain.SavingsConfig, error) {
	if cfg, ok := s.cur[ownerID]; ok {
		return cfg, nil
	}
	raw, found, err := s.kv.Load(ctx, SavingsEntryFor(ownerID))
	if err != nil {
		return domain.SavingsConfig{}, err
	}

	cfg := domain.DefaultSavingsConfig()
	if found {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			// A corrupt entry is replaced by defaults on the next write.
			s.logger.Warn("localstore: corrupt savings entry, using defaults",
				zap.String("owner_id", ownerID), zap.Error(err))
			cfg = domain.DefaultSavingsConfig()
		}
		if cfg.RetentionPercentage < domain.MinRetentionPercentage || cfg.RetentionPercentage > domain.MaxRetentionPercentage {
			cfg.RetentionPercentage = domain.DefaultRetentionPercentage
		}
		if cfg.SelectedFund != nil && !cfg.SelectedFund.Valid() {
			cfg.SelectedFund = nil
		}
	}
	s.cur[ownerID] = cfg
	return cfg, nil
}

func (s *SavingsStore) saveLocked(ctx context.Context, ownerID string, cfg domain.SavingsConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode savings config: %w", err)
	}
	if err := s.kv.Save(ctx, SavingsEntryFor(ownerID), raw); err != nil {
		return err
	}
	s.cur[ownerID] = cfg
	return nil
}

func copyConfig(c domain.SavingsConfig) domain.SavingsConfig {
	if c.SelectedFund != nil {
		f := *c.SelectedFund
		c.SelectedFund = &f
	}
	return c
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
