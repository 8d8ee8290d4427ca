package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/config"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	appmodels "gitlab.com/yelinaung/expense-approval/internal/models"
	"gitlab.com/yelinaung/expense-approval/internal/repository"
)

const (
	testChatID     = int64(777)
	managerTgID    = int64(5001)
	adminTgID      = int64(5003)
	unknownTgID    = int64(9999)
	employeeTgID   = int64(5002)
	outsiderTgID   = int64(5006)
	rivalAdminTgID = int64(5007)
	testClaimID    = "claim-1"
	testNotifyChat = int64(-100200)
)

func init() {
	logger.InitHashSaltForTesting("bot-test-salt")
}

var testTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type fakeUsers struct {
	byID map[string]*appmodels.User
}

func newFakeUsers() *fakeUsers {
	users := []*appmodels.User{
		{ID: "mgr", CompanyID: 1, Name: "Mia <Manager>", Role: appmodels.RoleManager, TelegramID: managerTgID},
		{ID: "emp", CompanyID: 1, Name: "Eve", Role: appmodels.RoleEmployee, TelegramID: employeeTgID},
		{ID: "fin", CompanyID: 1, Name: "Finn", Role: appmodels.RoleEmployee, TelegramID: 5004},
		{ID: "cfo", CompanyID: 1, Name: "Cleo", Role: appmodels.RoleManager},
		{ID: "admin", CompanyID: 1, Name: "Ada", Role: appmodels.RoleAdmin, TelegramID: adminTgID},
		{ID: "ozzy", CompanyID: 1, Name: "Ozzy", Role: appmodels.RoleEmployee, TelegramID: outsiderTgID},
		{ID: "rival", CompanyID: 2, Name: "Rita", Role: appmodels.RoleAdmin, TelegramID: rivalAdminTgID},
	}
	f := &fakeUsers{byID: map[string]*appmodels.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, telegramID int64) (*appmodels.User, error) {
	for _, u := range f.byID {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*appmodels.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

// fakeClaims applies votes through the real state machine.
type fakeClaims struct {
	mu        sync.Mutex
	claims    map[string]*appmodels.Claim
	lastVote  *approval.VoteRequest
	overrides []approval.OverrideRequest
	drafts    []approval.DraftInput
	getErr    error
	draftErr  error
	submitErr error
}

func newFakeClaims(claims ...*appmodels.Claim) *fakeClaims {
	f := &fakeClaims{claims: map[string]*appmodels.Claim{}}
	for _, c := range claims {
		f.claims[c.ID] = c
	}
	return f
}

func (f *fakeClaims) Get(_ context.Context, claimID string) (*appmodels.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.claims[claimID]
	if !ok {
		return nil, approval.ErrClaimNotFound
	}
	return c.Clone(), nil
}

func (f *fakeClaims) CreateDraft(_ context.Context, in approval.DraftInput) (*appmodels.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, in)
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	claim := &appmodels.Claim{
		ID:          fmt.Sprintf("draft-%d", len(f.drafts)),
		CompanyID:   in.CompanyID,
		SubmitterID: in.SubmitterID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Category:    in.Category,
		ExpenseDate: in.ExpenseDate,
		Description: in.Description,
		Status:      appmodels.ClaimDraft,
	}
	f.claims[claim.ID] = claim
	return claim.Clone(), nil
}

// Submit routes every claim to the manager at a fixed EUR rate.
func (f *fakeClaims) Submit(_ context.Context, claimID string) (*appmodels.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	c, ok := f.claims[claimID]
	if !ok {
		return nil, approval.ErrClaimNotFound
	}
	next := c.Clone()
	chain := []appmodels.ApprovalStep{{Index: 0, Name: "Manager", Voters: []string{"mgr"}, Rule: appmodels.Unanimous(), Status: appmodels.StepActive}}
	snap := appmodels.RateSnapshot{
		Amount:   c.Amount.Mul(decimal.RequireFromString("1.46")).Round(2),
		Currency: "SGD",
		Rate:     decimal.RequireFromString("1.46"),
		RateDate: testTime,
	}
	if _, err := approval.Submit(next, chain, snap, testTime); err != nil {
		return nil, err
	}
	f.claims[claimID] = next
	return next.Clone(), nil
}

func (f *fakeClaims) CastVote(_ context.Context, req approval.VoteRequest) (*approval.VoteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastVote = &req
	c, ok := f.claims[req.ClaimID]
	if !ok {
		return nil, approval.ErrClaimNotFound
	}
	next := c.Clone()
	events, err := approval.CastVote(next, approval.VoteInput{
		StepIndex: req.StepIndex,
		VoterID:   req.VoterID,
		Decision:  req.Decision,
		Comment:   req.Comment,
	}, testTime)
	if err != nil {
		return nil, err
	}
	f.claims[req.ClaimID] = next
	return &approval.VoteResult{Claim: next.Clone(), Events: events}, nil
}

func (f *fakeClaims) Override(_ context.Context, req approval.OverrideRequest) (*appmodels.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = append(f.overrides, req)
	if req.Actor != "admin" {
		return nil, approval.ErrUnauthorized
	}
	c, ok := f.claims[req.ClaimID]
	if !ok {
		return nil, approval.ErrClaimNotFound
	}
	next := c.Clone()
	if _, err := approval.ForceStatus(next, approval.OverrideInput{
		Actor:  req.Actor,
		Reason: req.Reason,
		Status: req.Status,
	}, testTime); err != nil {
		return nil, err
	}
	f.claims[req.ClaimID] = next
	return next.Clone(), nil
}

type fakeInbox struct {
	claims    map[string][]*appmodels.Claim
	submitted map[string][]*appmodels.Claim
	err       error
	lastLimit int
}

func (f *fakeInbox) ListBySubmitter(_ context.Context, submitterID string, limit int) ([]*appmodels.Claim, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.submitted[submitterID], nil
}

func (f *fakeInbox) ListAwaitingVoter(_ context.Context, voterID string) ([]*appmodels.Claim, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims[voterID], nil
}

// reviewClaim is in review on a manager step, followed by a finance step
// decided by 50% of two voters or the CFO.
func reviewClaim(id string) *appmodels.Claim {
	submitted := testTime.Add(-time.Hour)
	return &appmodels.Claim{
		ID:          id,
		CompanyID:   1,
		SubmitterID: "emp",
		Amount:      decimal.RequireFromString("120.50"),
		Currency:    "EUR",
		Normalized: &appmodels.RateSnapshot{
			Amount:   decimal.RequireFromString("175.93"),
			Currency: "SGD",
			Rate:     decimal.RequireFromString("1.46"),
			RateDate: testTime,
		},
		Category:    "Travel",
		ExpenseDate: time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
		Description: "Taxi <airport>",
		Chain: []appmodels.ApprovalStep{
			{
				Index:  0,
				Name:   "Manager",
				Voters: []string{"mgr"},
				Rule:   appmodels.Unanimous(),
				Status: appmodels.StepActive,
			},
			{
				Index:  1,
				Name:   "Finance",
				Voters: []string{"fin", "acct"},
				Rule:   appmodels.HybridRule{Threshold: decimal.NewFromInt(50), ApproverID: "cfo"},
				Status: appmodels.StepPending,
			},
		},
		Status:      appmodels.ClaimInReview,
		Version:     1,
		SubmittedAt: &submitted,
	}
}

func newTestBot(claims *fakeClaims, inbox *fakeInbox) *Bot {
	if inbox == nil {
		inbox = &fakeInbox{}
	}
	return newBot(&config.Config{}, claims, newFakeUsers(), inbox)
}
