package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/database"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// ErrCompanyNotFound is returned when a company lookup has no match.
var ErrCompanyNotFound = errors.New("company not found")

// CompanyRepository handles company database operations.
type CompanyRepository struct {
	db database.PGXDB
}

var _ approval.CompanyStore = (*CompanyRepository)(nil)

// NewCompanyRepository creates a new CompanyRepository.
func NewCompanyRepository(db database.PGXDB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// Create adds a new company, defaulting its base currency.
func (r *CompanyRepository) Create(ctx context.Context, company *models.Company) error {
	company.BaseCurrency = strings.ToUpper(strings.TrimSpace(company.BaseCurrency))
	if company.BaseCurrency == "" {
		company.BaseCurrency = models.DefaultCurrency
	}
	if _, ok := models.SupportedCurrencies[company.BaseCurrency]; !ok {
		return fmt.Errorf("unsupported base currency %q", company.BaseCurrency)
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO companies (name, base_currency)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, company.Name, company.BaseCurrency).Scan(&company.ID, &company.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// Company implements approval.CompanyStore.
func (r *CompanyRepository) Company(ctx context.Context, id int64) (*models.Company, error) {
	var c models.Company
	err := r.db.QueryRow(ctx, `
		SELECT id, name, base_currency, created_at
		FROM companies WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.BaseCurrency, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrCompanyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}
