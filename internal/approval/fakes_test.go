package approval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/exchange"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

var errUnknownUser = errors.New("unknown user")

type fakeDirectory struct {
	managers map[string]string
	roles    map[string]models.Role
	err      error
}

func (d *fakeDirectory) ResolveManager(_ context.Context, userID string) (string, bool, error) {
	if d.err != nil {
		return "", false, d.err
	}
	m, ok := d.managers[userID]
	return m, ok, nil
}

func (d *fakeDirectory) RoleOf(_ context.Context, userID string) (models.Role, error) {
	role, ok := d.roles[userID]
	if !ok {
		return "", errUnknownUser
	}
	return role, nil
}

type fakeRules struct {
	cfg *models.RuleConfig
}

func (r *fakeRules) RuleConfig(context.Context, int64) (*models.RuleConfig, error) {
	return r.cfg, nil
}

type fakeCompanies struct{}

func (fakeCompanies) Company(_ context.Context, id int64) (*models.Company, error) {
	return &models.Company{ID: id, Name: "Acme", BaseCurrency: "SGD"}, nil
}

// memoryStore is a ClaimStore with the same version semantics as the
// database repository.
type memoryStore struct {
	mu     sync.Mutex
	claims map[string]*models.Claim
	saves  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{claims: make(map[string]*models.Claim)}
}

func (s *memoryStore) Create(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[claim.ID] = claim.Clone()
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, ErrClaimNotFound
	}
	return c.Clone(), nil
}

func (s *memoryStore) Save(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.claims[claim.ID]
	if !ok {
		return ErrClaimNotFound
	}
	if stored.Version != claim.Version {
		return ErrConcurrentUpdate
	}
	claim.Version++
	s.claims[claim.ID] = claim.Clone()
	s.saves++
	return nil
}

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.StepEvent
}

func (s *recordingSink) Publish(_ context.Context, ev models.StepEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []models.StepEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StepEvent(nil), s.events...)
}

// fakeNormalizer converts at a fixed rate unless unavailable is set.
type fakeNormalizer struct {
	rate        decimal.Decimal
	unavailable bool
	lastKnown   *models.RateSnapshot
}

func (n *fakeNormalizer) Normalize(_ context.Context, amount decimal.Decimal, _, target string, asOf time.Time) (models.RateSnapshot, error) {
	if n.unavailable {
		return models.RateSnapshot{}, exchange.ErrRateUnavailable
	}
	return models.RateSnapshot{
		Amount:   amount.Mul(n.rate).Round(2),
		Currency: target,
		Rate:     n.rate,
		RateDate: asOf,
	}, nil
}

func (n *fakeNormalizer) LastKnown(amount decimal.Decimal, _, target string) (models.RateSnapshot, error) {
	if n.lastKnown == nil {
		return models.RateSnapshot{}, exchange.ErrRateUnavailable
	}
	snap := *n.lastKnown
	snap.Amount = amount.Mul(snap.Rate).Round(2)
	snap.Currency = target
	return snap, nil
}
