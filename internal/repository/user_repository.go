package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/database"
	"gitlab.com/yelinaung/expense-approval/internal/models"
)

// ErrUserNotFound is returned when a user lookup has no match.
var ErrUserNotFound = errors.New("user not found")

// UserRepository handles user database operations.
type UserRepository struct {
	db database.PGXDB
}

var _ approval.UserDirectory = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db database.PGXDB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertUser creates or updates a user. The manager is not touched on update;
// use SetManager for that.
func (r *UserRepository) UpsertUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleEmployee
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, company_id, name, email, role, telegram_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			telegram_id = EXCLUDED.telegram_id
	`, user.ID, user.CompanyID, user.Name, nullString(user.Email), user.Role, nullTelegramID(user.TelegramID))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, id)
}

// GetByTelegramID retrieves the user linked to a Telegram account.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return r.getUser(ctx, `WHERE telegram_id = $1`, telegramID)
}

func (r *UserRepository) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var (
		user       models.User
		email      *string
		managerID  *string
		telegramID *int64
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, company_id, name, email, role, manager_id, telegram_id, created_at
		FROM users `+where, arg).Scan(&user.ID, &user.CompanyID, &user.Name, &email, &user.Role,
		&managerID, &telegramID, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Email = deref(email)
	user.ManagerID = deref(managerID)
	if telegramID != nil {
		user.TelegramID = *telegramID
	}
	return &user, nil
}

// SetManager assigns managerID as the user's manager. An empty managerID
// clears it. Assignments that would close a reporting cycle, or push anyone's
// reporting line past approval.MaxHierarchyDepth, fail with
// approval.ErrInvalidHierarchy.
func (r *UserRepository) SetManager(ctx context.Context, userID, managerID string) error {
	if managerID != "" {
		if managerID == userID {
			return fmt.Errorf("%w: %s cannot manage themselves", approval.ErrInvalidHierarchy, userID)
		}
		if err := r.checkReportingLine(ctx, userID, managerID); err != nil {
			return err
		}
	}

	tag, err := r.db.Exec(ctx, `UPDATE users SET manager_id = $2 WHERE id = $1`, userID, nullString(managerID))
	if err != nil {
		return fmt.Errorf("failed to set manager: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// checkReportingLine walks up from managerID and fails on a cycle back to
// userID or when the deepest report under userID would end up with more than
// approval.MaxHierarchyDepth managers.
func (r *UserRepository) checkReportingLine(ctx context.Context, userID, managerID string) error {
	below, err := r.reportDepth(ctx, userID)
	if err != nil {
		return err
	}

	above := 1
	current := managerID
	for {
		if above+below > approval.MaxHierarchyDepth {
			return fmt.Errorf("%w: reporting line under %s would exceed %d managers",
				approval.ErrInvalidHierarchy, managerID, approval.MaxHierarchyDepth)
		}
		next, ok, err := r.ResolveManager(ctx, current)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if next == userID {
			return fmt.Errorf("%w: %s already reports to %s", approval.ErrInvalidHierarchy, managerID, userID)
		}
		above++
		current = next
	}
}

// reportDepth returns how many levels of reports sit under userID.
func (r *UserRepository) reportDepth(ctx context.Context, userID string) (int, error) {
	var depth int
	err := r.db.QueryRow(ctx, `
		WITH RECURSIVE reports (id, depth) AS (
			SELECT id, 1 FROM users WHERE manager_id = $1
			UNION ALL
			SELECT u.id, r.depth + 1
			FROM users u JOIN reports r ON u.manager_id = r.id
			WHERE r.depth <= $2
		)
		SELECT COALESCE(MAX(depth), 0) FROM reports
	`, userID, approval.MaxHierarchyDepth).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("failed to measure reporting depth: %w", err)
	}
	return depth, nil
}

// ResolveManager implements approval.UserDirectory.
func (r *UserRepository) ResolveManager(ctx context.Context, userID string) (string, bool, error) {
	var managerID *string
	err := r.db.QueryRow(ctx, `SELECT manager_id FROM users WHERE id = $1`, userID).Scan(&managerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve manager: %w", err)
	}
	if managerID == nil {
		return "", false, nil
	}
	return *managerID, true, nil
}

// RoleOf implements approval.UserDirectory.
func (r *UserRepository) RoleOf(ctx context.Context, userID string) (models.Role, error) {
	var role models.Role
	err := r.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

func nullTelegramID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
