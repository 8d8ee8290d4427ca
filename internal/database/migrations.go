package database

import (
	"context"
	"fmt"
)

// RunMigrations creates the database schema.
func RunMigrations(ctx context.Context, db PGXDB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			base_currency TEXT NOT NULL DEFAULT 'USD',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			company_id BIGINT NOT NULL REFERENCES companies(id),
			name TEXT NOT NULL,
			email TEXT,
			role TEXT NOT NULL DEFAULT 'employee',
			manager_id TEXT REFERENCES users(id),
			telegram_id BIGINT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_company_id ON users(company_id)`,

		`CREATE TABLE IF NOT EXISTS approval_rule_configs (
			company_id BIGINT PRIMARY KEY REFERENCES companies(id),
			manager_is_first_approver BOOLEAN NOT NULL DEFAULT TRUE,
			require_manager BOOLEAN NOT NULL DEFAULT FALSE,
			manager_rule_kind TEXT,
			manager_rule_threshold DECIMAL(5, 2),
			manager_rule_approver TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS approval_step_templates (
			company_id BIGINT NOT NULL REFERENCES companies(id),
			sequence INTEGER NOT NULL,
			name TEXT NOT NULL,
			approvers TEXT[] NOT NULL,
			rule_kind TEXT NOT NULL,
			rule_threshold DECIMAL(5, 2),
			rule_approver TEXT,
			PRIMARY KEY (company_id, sequence)
		)`,

		`CREATE TABLE IF NOT EXISTS claims (
			id TEXT PRIMARY KEY,
			company_id BIGINT NOT NULL REFERENCES companies(id),
			submitter_id TEXT NOT NULL REFERENCES users(id),
			amount DECIMAL(14, 2) NOT NULL,
			currency TEXT NOT NULL,
			normalized_amount DECIMAL(14, 2),
			normalized_currency TEXT,
			normalized_rate DECIMAL(20, 10),
			normalized_rate_date DATE,
			category TEXT NOT NULL,
			expense_date DATE NOT NULL,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'draft',
			version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			submitted_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_company_id ON claims(company_id)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_submitter_id ON claims(submitter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status)`,

		`CREATE TABLE IF NOT EXISTS approval_steps (
			claim_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
			step_index INTEGER NOT NULL,
			name TEXT NOT NULL,
			voters TEXT[] NOT NULL,
			rule_kind TEXT NOT NULL,
			rule_threshold DECIMAL(5, 2),
			rule_approver TEXT,
			status TEXT NOT NULL,
			forced BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (claim_id, step_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_steps_status ON approval_steps(status)`,

		`CREATE TABLE IF NOT EXISTS claim_votes (
			claim_id TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			voter_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			decision TEXT NOT NULL,
			comment TEXT,
			cast_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (claim_id, step_index, voter_id),
			FOREIGN KEY (claim_id, step_index)
				REFERENCES approval_steps(claim_id, step_index) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS claim_overrides (
			id BIGSERIAL PRIMARY KEY,
			claim_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			actor_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_overrides_claim_id ON claim_overrides(claim_id)`,

		`CREATE TABLE IF NOT EXISTS claim_events (
			id BIGSERIAL PRIMARY KEY,
			claim_id TEXT NOT NULL REFERENCES claims(id) ON DELETE CASCADE,
			company_id BIGINT NOT NULL,
			step_index INTEGER NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			claim_status TEXT NOT NULL,
			voter_id TEXT,
			override_actor TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_events_claim_id ON claim_events(claim_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}
