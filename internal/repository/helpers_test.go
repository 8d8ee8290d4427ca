package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/expense-approval/internal/database"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// seedCompany creates a company with an admin, a manager and an employee
// reporting to the manager.
func seedCompany(t *testing.T, db database.PGXDB) *models.Company {
	t.Helper()
	ctx := context.Background()

	company := &models.Company{Name: "Acme", BaseCurrency: "SGD"}
	require.NoError(t, NewCompanyRepository(db).Create(ctx, company))

	users := NewUserRepository(db)
	for _, u := range []*models.User{
		{ID: "admin", CompanyID: company.ID, Name: "Ada", Role: models.RoleAdmin},
		{ID: "mgr", CompanyID: company.ID, Name: "Max", Role: models.RoleManager, TelegramID: 5001},
		{ID: "cfo", CompanyID: company.ID, Name: "Cleo", Role: models.RoleManager},
		{ID: "emp", CompanyID: company.ID, Name: "Eve", Role: models.RoleEmployee, TelegramID: 5002},
	} {
		require.NoError(t, users.UpsertUser(ctx, u))
	}
	require.NoError(t, users.SetManager(ctx, "emp", "mgr"))
	return company
}
