package approval

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// UserDirectory resolves reporting lines and roles. It is expected to reject
// cyclic manager assignments when they are made.
type UserDirectory interface {
	// ResolveManager returns the user's manager, or ok=false if there is none.
	ResolveManager(ctx context.Context, userID string) (managerID string, ok bool, err error)
	RoleOf(ctx context.Context, userID string) (models.Role, error)
}

// RuleConfigStore supplies a company's approval chain configuration.
type RuleConfigStore interface {
	RuleConfig(ctx context.Context, companyID int64) (*models.RuleConfig, error)
}

// CompanyStore supplies company records.
type CompanyStore interface {
	Company(ctx context.Context, companyID int64) (*models.Company, error)
}

// ClaimStore persists claims. Save must fail with ErrConcurrentUpdate when
// the stored version differs from claim.Version, and bump Version on success.
type ClaimStore interface {
	Create(ctx context.Context, claim *models.Claim) error
	Get(ctx context.Context, id string) (*models.Claim, error)
	Save(ctx context.Context, claim *models.Claim) error
}

// EventSink receives step transitions. Publish must not block the caller.
type EventSink interface {
	Publish(ctx context.Context, event models.StepEvent)
}

// AmountNormalizer converts claim amounts into the company currency.
type AmountNormalizer interface {
	Normalize(ctx context.Context, amount decimal.Decimal, source, target string, asOf time.Time) (models.RateSnapshot, error)
	LastKnown(amount decimal.Decimal, source, target string) (models.RateSnapshot, error)
}
