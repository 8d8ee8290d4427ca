package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/database"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// RuleConfigRepository stores per-company approval chain configuration.
type RuleConfigRepository struct {
	db database.PGXDB
}

var _ approval.RuleConfigStore = (*RuleConfigRepository)(nil)

// NewRuleConfigRepository creates a new RuleConfigRepository.
func NewRuleConfigRepository(db database.PGXDB) *RuleConfigRepository {
	return &RuleConfigRepository{db: db}
}

// Save replaces the company's configuration and step templates.
func (r *RuleConfigRepository) Save(ctx context.Context, cfg *models.RuleConfig) error {
	for _, tmpl := range cfg.Steps {
		if err := approval.ValidateRule(tmpl.Rule); err != nil {
			return fmt.Errorf("step %q: %w", tmpl.Name, err)
		}
	}

	var (
		managerKind      *models.RuleKind
		managerThreshold *decimal.Decimal
		managerApprover  *string
	)
	if cfg.ManagerRule != nil {
		if err := approval.ValidateRule(cfg.ManagerRule); err != nil {
			return fmt.Errorf("manager rule: %w", err)
		}
		kind, threshold, approver := approval.RuleParams(cfg.ManagerRule)
		managerKind = &kind
		managerThreshold = nullDecimal(threshold)
		managerApprover = nullString(approver)
	}

	return database.WithTx(ctx, r.db, func(tx database.PGXDB) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO approval_rule_configs (
				company_id, manager_is_first_approver, require_manager,
				manager_rule_kind, manager_rule_threshold, manager_rule_approver, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (company_id) DO UPDATE SET
				manager_is_first_approver = EXCLUDED.manager_is_first_approver,
				require_manager = EXCLUDED.require_manager,
				manager_rule_kind = EXCLUDED.manager_rule_kind,
				manager_rule_threshold = EXCLUDED.manager_rule_threshold,
				manager_rule_approver = EXCLUDED.manager_rule_approver,
				updated_at = NOW()
		`, cfg.CompanyID, cfg.ManagerIsFirstApprover, cfg.RequireManager,
			managerKind, managerThreshold, managerApprover)
		if err != nil {
			return fmt.Errorf("failed to save rule config: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM approval_step_templates WHERE company_id = $1`, cfg.CompanyID); err != nil {
			return fmt.Errorf("failed to clear step templates: %w", err)
		}

		for _, tmpl := range cfg.Steps {
			kind, threshold, approver := approval.RuleParams(tmpl.Rule)
			_, err := tx.Exec(ctx, `
				INSERT INTO approval_step_templates (company_id, sequence, name, approvers, rule_kind, rule_threshold, rule_approver)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, cfg.CompanyID, tmpl.Sequence, tmpl.Name, tmpl.Approvers, kind,
				nullDecimal(threshold), nullString(approver))
			if err != nil {
				return fmt.Errorf("failed to insert step template %q: %w", tmpl.Name, err)
			}
		}
		return nil
	})
}

// RuleConfig implements approval.RuleConfigStore. Companies without a stored
// configuration get a manager-only chain.
func (r *RuleConfigRepository) RuleConfig(ctx context.Context, companyID int64) (*models.RuleConfig, error) {
	cfg := &models.RuleConfig{CompanyID: companyID, ManagerIsFirstApprover: true}

	var (
		managerKind      *models.RuleKind
		managerThreshold decimal.NullDecimal
		managerApprover  *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT manager_is_first_approver, require_manager,
		       manager_rule_kind, manager_rule_threshold, manager_rule_approver
		FROM approval_rule_configs WHERE company_id = $1
	`, companyID).Scan(&cfg.ManagerIsFirstApprover, &cfg.RequireManager,
		&managerKind, &managerThreshold, &managerApprover)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get rule config: %w", err)
	}

	if managerKind != nil {
		cfg.ManagerRule, err = approval.ParseRule(*managerKind, managerThreshold.Decimal, deref(managerApprover))
		if err != nil {
			return nil, fmt.Errorf("manager rule of company %d: %w", companyID, err)
		}
	}

	rows, err := r.db.Query(ctx, `
		SELECT sequence, name, approvers, rule_kind, rule_threshold, rule_approver
		FROM approval_step_templates WHERE company_id = $1
		ORDER BY sequence
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step templates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tmpl      models.StepTemplate
			kind      models.RuleKind
			threshold decimal.NullDecimal
			approver  *string
		)
		if err := rows.Scan(&tmpl.Sequence, &tmpl.Name, &tmpl.Approvers, &kind, &threshold, &approver); err != nil {
			return nil, fmt.Errorf("failed to scan step template: %w", err)
		}
		tmpl.Rule, err = approval.ParseRule(kind, threshold.Decimal, deref(approver))
		if err != nil {
			return nil, fmt.Errorf("step template %q: %w", tmpl.Name, err)
		}
		cfg.Steps = append(cfg.Steps, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step templates: %w", err)
	}
	return cfg, nil
}
