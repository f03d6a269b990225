package recordings

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duetcast/controller/internal/models"
)

// Repository handles recording catalog persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordingColumns = `id, egress_id, room_name, COALESCE(room_key,''), COALESCE(file_path,''), COALESCE(s3_key,''), COALESCE(s3_url,''), file_size, status, COALESCE(link_status,''), COALESCE(link_error,''), created_at, updated_at`

func scanRecording(row pgx.Row, rec *models.Recording) error {
	return row.Scan(&rec.ID, &rec.EgressID, &rec.RoomName, &rec.RoomKey, &rec.FilePath, &rec.S3Key, &rec.S3URL,
		&rec.FileSize, &rec.Status, &rec.LinkStatus, &rec.LinkError, &rec.CreatedAt, &rec.UpdatedAt)
}

// CreateStarted inserts a new catalog row when an egress job starts.
func (r *Repository) CreateStarted(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (id, egress_id, room_name, room_key, file_path, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, rec.EgressID, rec.RoomName, rec.RoomKey, rec.FilePath, rec.Status).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// UpdateFinalized writes the terminal outcome for an egress id.
func (r *Repository) UpdateFinalized(ctx context.Context, egressID, status, s3Key, s3URL, linkStatus, linkError string, fileSize int64) error {
	const q = `UPDATE recordings
		SET status = $1, s3_key = $2, s3_url = $3, link_status = $4, link_error = $5, file_size = $6, updated_at = NOW()
		WHERE egress_id = $7`
	_, err := r.pool.Exec(ctx, q, status, s3Key, s3URL, linkStatus, linkError, fileSize, egressID)
	return err
}

// GetByID returns a recording by catalog id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	const q = `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	var rec models.Recording
	if err := scanRecording(r.pool.QueryRow(ctx, q, id), &rec); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// GetByEgressID returns a recording by egress id.
func (r *Repository) GetByEgressID(ctx context.Context, egressID string) (*models.Recording, error) {
	const q = `SELECT ` + recordingColumns + ` FROM recordings WHERE egress_id = $1`
	var rec models.Recording
	if err := scanRecording(r.pool.QueryRow(ctx, q, egressID), &rec); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByRoom returns all recordings for a room, newest first.
func (r *Repository) ListByRoom(ctx context.Context, roomName string) ([]models.Recording, error) {
	const q = `SELECT ` + recordingColumns + ` FROM recordings WHERE room_name = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, roomName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := scanRecording(rows, &rec); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}
