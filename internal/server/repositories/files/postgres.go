package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avezhov/filestorage/internal/common"
	"github.com/avezhov/filestorage/internal/dbx"
	"github.com/avezhov/filestorage/internal/server/models"
	"github.com/google/uuid"
)

const fileColumns = `id, user_id, path, size, is_downloadable, uuid, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get looks a record up by uuid or path, always scoped to the owner.
// When both are supplied, a uuid match wins over a path match. Missing
// identifying fields are a caller contract violation (ErrFieldRequired);
// no matching record is ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID int64, fileUUID, path string) (*models.File, error) {

	if userID == 0 {
		return nil, fmt.Errorf("%w: user_id", common.ErrFieldRequired)
	}
	if fileUUID == "" && path == "" {
		return nil, fmt.Errorf("%w: uuid or path", common.ErrFieldRequired)
	}

	if fileUUID != "" {
		f, err := r.getWhere(ctx, `uuid = $1 AND user_id = $2`, fileUUID, userID)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
	}

	if path != "" {
		return r.getWhere(ctx, `path = $1 AND user_id = $2`, path, userID)
	}

	return nil, common.ErrNotFound
}

// Create inserts a new record and mints its uuid. The uuid is assigned
// exactly once, here; replaces never touch it. A concurrent create at the
// same path loses to the unique constraint and maps to ErrFileConflict.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) (*models.File, error) {

	file.UUID = uuid.NewString()

	query :=
		`INSERT INTO files (user_id, path, size, is_downloadable, uuid)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		file.UserID, file.Path, file.Size, file.IsDownloadable, file.UUID).
		Scan(&file.ID, &file.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrFileConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return file, nil
}

// Update mutates size and refreshes the timestamp of the record at
// (userID, path), preserving uuid and all other fields.
func (r *PostgresRepository) Update(ctx context.Context, userID int64, path string, size int64) (*models.File, error) {

	query :=
		`UPDATE files SET size = $1, created_at = now()
		 WHERE user_id = $2 AND path = $3
		 RETURNING ` + fileColumns

	f := &models.File{}
	err := r.db.QueryRowContext(ctx, query, size, userID, path).
		Scan(&f.ID, &f.UserID, &f.Path, &f.Size, &f.IsDownloadable, &f.UUID, &f.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return f, nil
}

// CreateOrUpdate looks the record up by (user, path) and either replaces
// its size and timestamp or inserts a fresh record. The returned flag is
// true when a new record was created, telling the blob layer whether the
// write is a first creation or an overwrite.
func (r *PostgresRepository) CreateOrUpdate(ctx context.Context, file *models.File) (*models.File, bool, error) {

	_, err := r.Get(ctx, file.UserID, "", file.Path)
	if err == nil {
		updated, err := r.Update(ctx, file.UserID, file.Path, file.Size)
		if err != nil {
			return nil, false, err
		}
		return updated, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	created, err := r.Create(ctx, file)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// ListByUser returns all records owned by userID in storage order.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*models.File, error) {

	query := `SELECT ` + fileColumns + ` FROM files WHERE user_id = $1`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f := &models.File{}
		err := rows.Scan(&f.ID, &f.UserID, &f.Path, &f.Size, &f.IsDownloadable, &f.UUID, &f.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) getWhere(ctx context.Context, where string, args ...any) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE ` + where

	f := &models.File{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&f.ID, &f.UserID, &f.Path, &f.Size, &f.IsDownloadable, &f.UUID, &f.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return f, nil
}
