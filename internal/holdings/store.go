// Package holdings keeps the session's list of holdings. Every mutation goes
// through the repository and is followed by a best-effort reload, and every reload moves
// the list to a new generation so that late price results can be discarded.
package holdings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zenrsr/capx-stockfolio/internal/models"
	"github.com/zenrsr/capx-stockfolio/internal/store"
)

var (
	ErrInvalidHolding  = errors.New("invalid holding")
	ErrTickerImmutable = errors.New("ticker of an existing holding cannot change")
)

type Store struct {
	repo   store.HoldingRepository
	logger *zap.Logger

	mu       sync.RWMutex
	holdings []models.Holding
	gen      uint64
	loaded   bool
}

func NewStore(repo store.HoldingRepository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, logger: logger, holdings: []models.Holding{}}
}

// Validate checks a holding coming from user input.
func Validate(h models.Holding) error {
	var errs error
	if models.NormalizeTicker(h.Ticker) == "" {
		errs = multierr.Append(errs, errors.New("ticker is required"))
	}
	if h.Quantity <= 0 {
		errs = multierr.Append(errs, errors.New("quantity must be positive"))
	}
	if h.BuyPrice <= 0 {
		errs = multierr.Append(errs, errors.New("buy price must be positive"))
	}
	if h.CurrentPrice < 0 {
		errs = multierr.Append(errs, errors.New("current price cannot be negative"))
	}
	if errs != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHolding, errs)
	}
	return nil
}

// Fetch reloads the list from the repository and returns it with its
// generation.
func (s *Store) Fetch(ctx context.Context) ([]models.Holding, uint64, error) {
	list, err := s.repo.ListHoldings(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load holdings: %w", err)
	}
	normalized := make([]models.Holding, len(list))
	for i, h := range list {
		normalized[i] = h.Normalize()
	}

	s.mu.Lock()
	s.holdings = normalized
	s.gen++
	s.loaded = true
	gen := s.gen
	s.mu.Unlock()

	s.logger.Debug("holdings loaded", zap.Int("count", len(normalized)), zap.Uint64("generation", gen))
	return clone(normalized), gen, nil
}

// List returns a copy of the current list and its generation.
func (s *Store) List() ([]models.Holding, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.holdings), s.gen
}

func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Store) Get(ctx context.Context, id int64) (models.Holding, error) {
	h, err := s.repo.GetHolding(ctx, id)
	if err != nil {
		return models.Holding{}, err
	}
	return h.Normalize(), nil
}

func (s *Store) Add(ctx context.Context, h models.Holding) (models.Holding, error) {
	if err := Validate(h); err != nil {
		return models.Holding{}, err
	}
	h.ID = 0
	h.AssetClass = models.Classify(h.Ticker)
	created, err := s.repo.CreateHolding(ctx, h.Normalize())
	if err != nil {
		return models.Holding{}, fmt.Errorf("create holding: %w", err)
	}
	s.reload(ctx, "create")
	return created, nil
}

// Edit updates an existing holding. The ticker, and with it the asset class,
// is fixed at creation.
func (s *Store) Edit(ctx context.Context, h models.Holding) (models.Holding, error) {
	if err := Validate(h); err != nil {
		return models.Holding{}, err
	}
	existing, err := s.repo.GetHolding(ctx, h.ID)
	if err != nil {
		return models.Holding{}, err
	}
	if models.NormalizeTicker(existing.Ticker) != models.NormalizeTicker(h.Ticker) {
		return models.Holding{}, fmt.Errorf("%w: %s to %s", ErrTickerImmutable, existing.Ticker, models.NormalizeTicker(h.Ticker))
	}
	h.AssetClass = existing.Normalize().AssetClass
	h.CreatedAt = existing.CreatedAt

	updated, err := s.repo.UpdateHolding(ctx, h.Normalize())
	if err != nil {
		return models.Holding{}, fmt.Errorf("update holding: %w", err)
	}
	s.reload(ctx, "update")
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteHolding(ctx, id); err != nil {
		return err
	}
	s.reload(ctx, "delete")
	return nil
}

// ApplyPrices records resolved current prices on the list loaded at gen.
// Non-positive prices are ignored. It reports false and changes nothing when
// the list has since been replaced.
func (s *Store) ApplyPrices(gen uint64, prices map[string]float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Debug("discarding stale prices", zap.Uint64("generation", gen), zap.Uint64("current", s.gen))
		return false
	}
	for i, h := range s.holdings {
		if p, ok := prices[h.Ticker]; ok && p > 0 {
			h.CurrentPrice = p
			s.holdings[i] = h.Normalize()
		}
	}
	return true
}

// reload refreshes the list after a successful mutation. A failure leaves the
// previous list in place until the next Fetch; the mutation itself stands.
func (s *Store) reload(ctx context.Context, op string) {
	if _, _, err := s.Fetch(ctx); err != nil {
		s.logger.Warn("reload after mutation failed", zap.String("op", op), zap.Error(err))
	}
}

func clone(list []models.Holding) []models.Holding {
	out := make([]models.Holding, len(list))
	copy(out, list)
	return out
}
