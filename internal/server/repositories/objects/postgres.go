package objects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/common"
	"github.com/dmitrijs2005/flaxvault/internal/dbx"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
)

const columns = `id, parent_id, owner_id, creator_id, name, is_dir, size, mimetype,
		content_key, content_hash, upload_status, in_trash, eliminated, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts obj and fills CreatedAt. A duplicate id yields
// common.ErrAlreadyExists; a dangling parent or owner yields common.ErrNotFound.
func (r *PostgresRepository) Create(ctx context.Context, obj *models.Object) (*models.Object, error) {
	query :=
		`INSERT INTO objects (id, parent_id, owner_id, creator_id, name, is_dir, size, mimetype,
			content_key, content_hash, upload_status, in_trash, eliminated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`

	var (
		size                              sql.NullInt64
		mimetype, key, hash, uploadStatus sql.NullString
	)
	if c := obj.Content; c != nil {
		size = sql.NullInt64{Int64: c.Size, Valid: true}
		mimetype = sql.NullString{String: c.Mimetype, Valid: true}
		key = sql.NullString{String: c.ContentKey, Valid: true}
		hash = sql.NullString{String: c.ContentHash, Valid: true}
		uploadStatus = sql.NullString{String: c.UploadStatus, Valid: true}
	}
	inTrash, eliminated := obj.State.Flags()

	err := r.db.QueryRowContext(ctx, query,
		obj.ID, nullable(obj.ParentID), obj.OwnerID, obj.CreatorID, obj.Name, obj.IsDir(),
		size, mimetype, key, hash, uploadStatus, inTrash, eliminated,
	).Scan(&obj.CreatedAt)
	if err != nil {
		switch {
		case dbx.IsUniqueViolation(err):
			return nil, fmt.Errorf("%w: object %s", common.ErrAlreadyExists, obj.ID)
		case dbx.IsForeignKeyViolation(err):
			return nil, fmt.Errorf("%w: parent or owner of object %s", common.ErrNotFound, obj.ID)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return obj, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Object, error) {
	query := `SELECT ` + columns + ` FROM objects
		WHERE id = $1 AND eliminated = false`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) Lookup(ctx context.Context, id string) (*models.Object, error) {
	query := `SELECT ` + columns + ` FROM objects
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query, id string) (*models.Object, error) {
	obj, err := scanObject(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return obj, nil
}

// Trash moves an active object to the trash.
func (r *PostgresRepository) Trash(ctx context.Context, id string) error {
	query := `UPDATE objects SET in_trash = true, updated_at = now()
		WHERE id = $1 AND in_trash = false AND eliminated = false`
	return r.transition(ctx, query, id)
}

// Restore moves a trashed object back to active.
func (r *PostgresRepository) Restore(ctx context.Context, id string) error {
	query := `UPDATE objects SET in_trash = false, updated_at = now()
		WHERE id = $1 AND in_trash = true AND eliminated = false`
	return r.transition(ctx, query, id)
}

// Eliminate marks an object as permanently gone. The row is kept.
func (r *PostgresRepository) Eliminate(ctx context.Context, id string) error {
	query := `UPDATE objects SET eliminated = true, updated_at = now()
		WHERE id = $1 AND eliminated = false`
	return r.transition(ctx, query, id)
}

// transition runs a conditional update. When no row matched it tells a
// missing object (ErrNotFound) from one in the wrong state (ErrConflict).
func (r *PostgresRepository) transition(ctx context.Context, query, id string) error {
	res, err := r.db.ExecContext(ctx, query, id)
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
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM objects WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: object %s is not in a state that allows this", common.ErrConflict, id)
	}
	return common.ErrNotFound
}

// ListOwn lists the caller's live objects directly under parentID (nil = root).
func (r *PostgresRepository) ListOwn(ctx context.Context, ownerID string, parentID *string, page models.Page) ([]*models.Object, error) {
	page = page.Normalize()
	query := `SELECT ` + columns + ` FROM objects
		WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2
			AND in_trash = false AND eliminated = false
		ORDER BY created_at, id
		LIMIT $3 OFFSET $4`
	return r.list(ctx, query, ownerID, nullable(parentID), page.Limit, page.Offset)
}

// ListShared lists live objects owned by others that userID can read. A nil
// parentID lists every shared object regardless of position in the tree.
func (r *PostgresRepository) ListShared(ctx context.Context, userID string, parentID *string, page models.Page) ([]*models.Object, error) {
	page = page.Normalize()
	query := `SELECT ` + qualified + ` FROM objects o
		JOIN user_x_objects p ON p.object_id = o.id
		WHERE p.user_id = $1 AND p.can_read = true AND o.owner_id <> $1
			AND ($2::uuid IS NULL OR o.parent_id = $2)
			AND o.in_trash = false AND o.eliminated = false
		ORDER BY o.created_at, o.id
		LIMIT $3 OFFSET $4`
	return r.list(ctx, query, userID, nullable(parentID), page.Limit, page.Offset)
}

// ListTrash lists the owner's trashed, not eliminated objects.
func (r *PostgresRepository) ListTrash(ctx context.Context, ownerID string, page models.Page) ([]*models.Object, error) {
	page = page.Normalize()
	query := `SELECT ` + columns + ` FROM objects
		WHERE owner_id = $1 AND in_trash = true AND eliminated = false
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, ownerID, page.Limit, page.Offset)
}

// MarkStored flips a file's upload_status to stored. It is idempotent;
// common.ErrNotFound means there is no such file.
func (r *PostgresRepository) MarkStored(ctx context.Context, id string) error {
	query := `UPDATE objects SET upload_status = 'stored', updated_at = now()
		WHERE id = $1 AND is_dir = false`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark stored: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// MarkFailed flips a pending file to failed. Files in any other state, or
// with another content key, are left alone, so a late failure never hides a
// stored upload.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id, contentKey string) error {
	query := `UPDATE objects SET upload_status = 'failed', updated_at = now()
		WHERE id = $1 AND content_key = $2 AND upload_status = 'pending'`
	if _, err := r.db.ExecContext(ctx, query, id, contentKey); err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkEnqueued(ctx context.Context, id string) error {
	query := `UPDATE objects SET enqueued_at = now()
		WHERE id = $1 AND upload_status = 'pending'`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark enqueued: %w", err)
	}
	return nil
}

// ListPending returns live files still waiting for the worker whose last
// event went out before enqueuedBefore, oldest first. Failed files are not
// pending.
func (r *PostgresRepository) ListPending(ctx context.Context, enqueuedBefore time.Time, limit int) ([]*models.Object, error) {
	query := `SELECT ` + columns + ` FROM objects
		WHERE upload_status = 'pending' AND eliminated = false AND enqueued_at < $1
		ORDER BY enqueued_at
		LIMIT $2`
	return r.list(ctx, query, enqueuedBefore, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Object, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Object, 0)
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
