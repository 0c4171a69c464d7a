package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go-linkrot/internal/model"
	"go-linkrot/internal/service"
	"go-linkrot/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var _ service.JobRepository = (*Repository)(nil)

func parseUUID(s string) (pgtype.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: u, Valid: true}, nil
}

type jobRow struct {
	ID           pgtype.UUID
	Input        []byte
	Status       string
	Error        pgtype.Text
	PagesCrawled int32
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

func (j jobRow) toModel() (*model.CrawlJob, error) {
	var input model.CrawlInput
	if len(j.Input) > 0 {
		if err := json.Unmarshal(j.Input, &input); err != nil {
			return nil, err
		}
	}
	errStr := ""
	if j.Error.Valid {
		errStr = j.Error.String
	}
	return &model.CrawlJob{
		ID:           uuid.UUID(j.ID.Bytes).String(),
		Input:        input,
		Status:       model.CrawlStatus(j.Status),
		PagesCrawled: int(j.PagesCrawled),
		Error:        errStr,
		CreatedAt:    j.CreatedAt.Time,
		UpdatedAt:    j.UpdatedAt.Time,
	}, nil
}

func (r *Repository) CreateJob(ctx context.Context, job *model.CrawlJob) error {
	inputJSON, err := json.Marshal(job.Input)
	if err != nil {
		return err
	}
	id, err := parseUUID(job.ID)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO jobs (id, input, status, error, pages_crawled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id,
		inputJSON,
		string(job.Status),
		pgtype.Text{String: job.Error, Valid: job.Error != ""},
		int32(job.PagesCrawled),
		pgtype.Timestamptz{Time: job.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: job.UpdatedAt, Valid: true},
	)
	return err
}

func (r *Repository) GetJob(ctx context.Context, id string) (*model.CrawlJob, error) {
	pid, err := parseUUID(id)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	var j jobRow
	err = r.pool.QueryRow(ctx, `
		SELECT id, input, status, error, pages_crawled, created_at, updated_at
		FROM jobs WHERE id = $1`, pid,
	).Scan(&j.ID, &j.Input, &j.Status, &j.Error, &j.PagesCrawled, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return j.toModel()
}

func (r *Repository) UpdateJobStatus(ctx context.Context, id string, status model.CrawlStatus, errMsg string) error {
	pid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $1, error = $2, updated_at = NOW()
		WHERE id = $3`,
		string(status),
		pgtype.Text{String: errMsg, Valid: errMsg != ""},
		pid,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *Repository) IncrementPagesCrawled(ctx context.Context, id string) error {
	pid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET pages_crawled = pages_crawled + 1, updated_at = NOW()
		WHERE id = $1`, pid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	return nil
}
