package approval

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// MaxHierarchyDepth is the most managers a submitter may have above them.
const MaxHierarchyDepth = 64

// BuildChain materializes the approval chain for a claim. Voter sets are
// resolved here once and never again. The returned chain has step 0 active
// and every other step pending.
func BuildChain(
	ctx context.Context,
	claim *models.Claim,
	cfg *models.RuleConfig,
	directory UserDirectory,
) ([]models.ApprovalStep, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: company has no approval configuration", ErrInvalidRuleConfig)
	}
	if err := validateTemplates(cfg); err != nil {
		return nil, err
	}

	var chain []models.ApprovalStep

	if cfg.ManagerIsFirstApprover {
		managerID, hasManager, err := resolveManager(ctx, directory, claim.SubmitterID)
		if err != nil {
			return nil, err
		}
		switch {
		case hasManager:
			rule := models.Rule(models.Unanimous())
			if cfg.ManagerRule != nil {
				rule = cfg.ManagerRule
			}
			chain = append(chain, models.ApprovalStep{
				Name:   "Manager approval",
				Voters: []string{managerID},
				Rule:   rule,
			})
		case cfg.RequireManager:
			return nil, fmt.Errorf("%w: submitter %s has no manager", ErrNoEligibleApprover, claim.SubmitterID)
		}
	}

	templates := slices.Clone(cfg.Steps)
	slices.SortStableFunc(templates, func(a, b models.StepTemplate) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	for _, tpl := range templates {
		voters := resolveVoters(tpl.Approvers, claim.SubmitterID)
		if len(voters) == 0 {
			return nil, fmt.Errorf("%w: step %q has no voters besides the submitter", ErrNoEligibleApprover, tpl.Name)
		}
		chain = append(chain, models.ApprovalStep{
			Name:   tpl.Name,
			Voters: voters,
			Rule:   tpl.Rule,
		})
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: approval chain is empty", ErrNoEligibleApprover)
	}

	for i := range chain {
		chain[i].Index = i
		chain[i].Status = models.StepPending
	}
	chain[0].Status = models.StepActive

	return chain, nil
}

func validateTemplates(cfg *models.RuleConfig) error {
	if cfg.ManagerRule != nil {
		if err := ValidateRule(cfg.ManagerRule); err != nil {
			return fmt.Errorf("manager step: %w", err)
		}
	}
	seen := make(map[int]bool, len(cfg.Steps))
	for _, tpl := range cfg.Steps {
		if seen[tpl.Sequence] {
			return fmt.Errorf("%w: duplicate step sequence %d", ErrInvalidRuleConfig, tpl.Sequence)
		}
		seen[tpl.Sequence] = true
		if len(tpl.Approvers) == 0 {
			return fmt.Errorf("%w: step %q has no approvers", ErrInvalidRuleConfig, tpl.Name)
		}
		if err := ValidateRule(tpl.Rule); err != nil {
			return fmt.Errorf("step %q: %w", tpl.Name, err)
		}
	}
	return nil
}

// resolveVoters dedupes approvers in declaration order and drops the submitter.
func resolveVoters(approvers []string, submitterID string) []string {
	voters := make([]string, 0, len(approvers))
	for _, id := range approvers {
		id = strings.TrimSpace(id)
		if id == "" || id == submitterID || slices.Contains(voters, id) {
			continue
		}
		voters = append(voters, id)
	}
	return voters
}

// resolveManager returns the submitter's direct manager after checking that
// the chain above the submitter terminates.
func resolveManager(ctx context.Context, directory UserDirectory, submitterID string) (string, bool, error) {
	if directory == nil {
		return "", false, nil
	}

	direct, ok, err := directory.ResolveManager(ctx, submitterID)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve manager: %w", err)
	}
	if !ok {
		return "", false, nil
	}

	visited := map[string]bool{submitterID: true}
	current := direct
	for depth := 0; ; depth++ {
		if visited[current] {
			return "", false, fmt.Errorf("%w: cycle through %s", ErrInvalidHierarchy, current)
		}
		if depth >= MaxHierarchyDepth {
			return "", false, fmt.Errorf("%w: manager chain deeper than %d", ErrInvalidHierarchy, MaxHierarchyDepth)
		}
		visited[current] = true

		next, hasNext, err := directory.ResolveManager(ctx, current)
		if err != nil {
			return "", false, fmt.Errorf("failed to resolve manager of %s: %w", current, err)
		}
		if !hasNext {
			break
		}
		current = next
	}

	return direct, true, nil
}
