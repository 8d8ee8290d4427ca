// Package ruleconfig loads approval chain configuration from a YAML file.
package ruleconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrUnknownCompany is returned when the file has no entry for a company and
// no default.
var ErrUnknownCompany = errors.New("no approval configuration for company")

// File is the on-disk layout.
//
//	default:
//	  manager_is_first_approver: true
//	companies:
//	  - company_id: 1
//	    require_manager: true
//	    steps:
//	      - sequence: 1
//	        name: Finance
//	        approvers: [fin1, fin2, fin3]
//	        rule: {kind: hybrid, threshold: 60, approver: cfo}
type File struct {
	Default   *CompanyRules  `yaml:"default"`
	Companies []CompanyRules `yaml:"companies"`
}

// CompanyRules is one company's chain configuration.
type CompanyRules struct {
	CompanyID              int64      `yaml:"company_id"`
	ManagerIsFirstApprover *bool      `yaml:"manager_is_first_approver"`
	RequireManager         bool       `yaml:"require_manager"`
	ManagerRule            *RuleSpec  `yaml:"manager_rule"`
	Steps                  []StepSpec `yaml:"steps"`
}

// StepSpec is a step template.
type StepSpec struct {
	Sequence  int      `yaml:"sequence"`
	Name      string   `yaml:"name"`
	Approvers []string `yaml:"approvers"`
	Rule      RuleSpec `yaml:"rule"`
}

// RuleSpec is a rule in file form. Threshold is a percentage in (0,100].
type RuleSpec struct {
	Kind      string `yaml:"kind"`
	Threshold string `yaml:"threshold"`
	Approver  string `yaml:"approver"`
}

// Store serves rule configurations parsed from a YAML file.
type Store struct {
	mu        sync.RWMutex
	path      string
	companies map[int64]*models.RuleConfig
	fallback  *models.RuleConfig
}

var _ approval.RuleConfigStore = (*Store)(nil)

// Load reads and validates the file at path.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse builds a Store from YAML bytes.
func Parse(data []byte) (*Store, error) {
	companies, fallback, err := parse(data)
	if err != nil {
		return nil, err
	}
	return &Store{companies: companies, fallback: fallback}, nil
}

// Reload re-reads the file. The previous configuration stays in place when
// the new one is invalid.
func (s *Store) Reload() error {
	if s.path == "" {
		return errors.New("store was not loaded from a file")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}
	companies, fallback, err := parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}

	s.mu.Lock()
	s.companies = companies
	s.fallback = fallback
	s.mu.Unlock()
	return nil
}

// RuleConfig implements approval.RuleConfigStore. The returned value is a copy.
func (s *Store) RuleConfig(_ context.Context, companyID int64) (*models.RuleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.companies[companyID]
	if !ok {
		if s.fallback == nil {
			return nil, fmt.Errorf("%w %d", ErrUnknownCompany, companyID)
		}
		cfg = s.fallback
	}

	out := *cfg
	out.CompanyID = companyID
	out.Steps = slices.Clone(cfg.Steps)
	for i := range out.Steps {
		out.Steps[i].Approvers = slices.Clone(cfg.Steps[i].Approvers)
	}
	return &out, nil
}

func parse(data []byte) (map[int64]*models.RuleConfig, *models.RuleConfig, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, nil, fmt.Errorf("parse yaml: %w", err)
	}

	var fallback *models.RuleConfig
	if file.Default != nil {
		cfg, err := file.Default.toConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("default: %w", err)
		}
		fallback = cfg
	}

	companies := make(map[int64]*models.RuleConfig, len(file.Companies))
	for i, c := range file.Companies {
		if c.CompanyID <= 0 {
			return nil, nil, fmt.Errorf("companies[%d]: %w: company_id is required", i, approval.ErrInvalidRuleConfig)
		}
		if _, dup := companies[c.CompanyID]; dup {
			return nil, nil, fmt.Errorf("companies[%d]: %w: duplicate company_id %d", i, approval.ErrInvalidRuleConfig, c.CompanyID)
		}
		cfg, err := c.toConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("company %d: %w", c.CompanyID, err)
		}
		companies[c.CompanyID] = cfg
	}
	return companies, fallback, nil
}

func (c CompanyRules) toConfig() (*models.RuleConfig, error) {
	cfg := &models.RuleConfig{
		CompanyID:              c.CompanyID,
		ManagerIsFirstApprover: true,
		RequireManager:         c.RequireManager,
	}
	if c.ManagerIsFirstApprover != nil {
		cfg.ManagerIsFirstApprover = *c.ManagerIsFirstApprover
	}

	if c.ManagerRule != nil {
		rule, err := c.ManagerRule.toRule()
		if err != nil {
			return nil, fmt.Errorf("manager_rule: %w", err)
		}
		cfg.ManagerRule = rule
	}

	seen := make(map[int]bool, len(c.Steps))
	for _, step := range c.Steps {
		if seen[step.Sequence] {
			return nil, fmt.Errorf("%w: duplicate step sequence %d", approval.ErrInvalidRuleConfig, step.Sequence)
		}
		seen[step.Sequence] = true
		if strings.TrimSpace(step.Name) == "" {
			return nil, fmt.Errorf("%w: step %d has no name", approval.ErrInvalidRuleConfig, step.Sequence)
		}
		if len(step.Approvers) == 0 {
			return nil, fmt.Errorf("%w: step %q has no approvers", approval.ErrInvalidRuleConfig, step.Name)
		}
		rule, err := step.Rule.toRule()
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", step.Name, err)
		}
		cfg.Steps = append(cfg.Steps, models.StepTemplate{
			Sequence:  step.Sequence,
			Name:      step.Name,
			Approvers: step.Approvers,
			Rule:      rule,
		})
	}
	return cfg, nil
}

func (r RuleSpec) toRule() (models.Rule, error) {
	threshold := decimal.Zero
	if t := strings.TrimSuffix(strings.TrimSpace(r.Threshold), "%"); t != "" {
		parsed, err := decimal.NewFromString(t)
		if err != nil {
			return nil, fmt.Errorf("%w: threshold %q: %w", approval.ErrInvalidRuleConfig, r.Threshold, err)
		}
		threshold = parsed
	}
	kind := models.RuleKind(strings.ToLower(strings.TrimSpace(r.Kind)))
	return approval.ParseRule(kind, threshold, strings.TrimSpace(r.Approver))
}
