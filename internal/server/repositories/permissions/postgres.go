package permissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/dbx"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a grant and fills p.CreatedAt. A second grant for the same
// pair yields common.ErrAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, p *models.Permission) error {
	query :=
		`INSERT INTO user_x_objects (user_id, object_id, can_read, can_edit, can_delete)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.UserID, p.ObjectID, p.Capabilities.Read, p.Capabilities.Edit, p.Capabilities.Delete,
	).Scan(&p.CreatedAt)
	if err != nil {
		switch {
		case dbx.IsUniqueViolation(err):
			return fmt.Errorf("%w: user %s already has access to %s", common.ErrAlreadyExists, p.UserID, p.ObjectID)
		case dbx.IsForeignKeyViolation(err):
			return fmt.Errorf("%w: user or object", common.ErrNotFound)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, objectID string) (*models.Permission, error) {
	query :=
		`SELECT user_id, object_id, can_read, can_edit, can_delete, created_at, updated_at
		 FROM user_x_objects
		 WHERE user_id = $1 AND object_id = $2`

	var (
		p         models.Permission
		updatedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, userID, objectID).Scan(&p.UserID, &p.ObjectID,
		&p.Capabilities.Read, &p.Capabilities.Edit, &p.Capabilities.Delete, &p.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if updatedAt.Valid {
		p.UpdatedAt = &updatedAt.Time
	}
	return &p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, objectID string) error {
	query := `DELETE FROM user_x_objects WHERE user_id = $1 AND object_id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, objectID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}

	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// ListByObject returns every grant on objectID with the grantee's email, oldest first.
func (r *PostgresRepository) ListByObject(ctx context.Context, objectID string) ([]*models.Grant, error) {
	query :=
		`SELECT u.id, u.email, p.can_read, p.can_edit, p.can_delete, p.created_at, p.updated_at
		 FROM user_x_objects p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.object_id = $1
		 ORDER BY p.created_at`

	rows, err := r.db.QueryContext(ctx, query, objectID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Grant, 0)
	for rows.Next() {
		var (
			g         models.Grant
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&g.UserID, &g.Email, &g.Capabilities.Read, &g.Capabilities.Edit,
			&g.Capabilities.Delete, &g.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if updatedAt.Valid {
			g.UpdatedAt = &updatedAt.Time
		}
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
