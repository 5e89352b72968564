package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

const assetColumns = `id, conversation_id, title, external_asset_id, state, created_at, last_polled_at, deadline, poll_attempts, player_url, error_detail`

func (r *Repository) SaveAssetJob(ctx context.Context, job domain.AssetJob) error {
	query := `
	INSERT INTO asset_jobs (` + assetColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		external_asset_id = excluded.external_asset_id,
		state = excluded.state,
		last_polled_at = excluded.last_polled_at,
		poll_attempts = excluded.poll_attempts,
		player_url = excluded.player_url,
		error_detail = excluded.error_detail;
	`
	var lastPolled *time.Time
	if !job.LastPolledAt.IsZero() {
		t := job.LastPolledAt.UTC()
		lastPolled = &t
	}
	_, err := r.db.ExecContext(ctx, query,
		string(job.ID), string(job.ConversationID), job.Title, job.ExternalAssetID, string(job.State),
		job.CreatedAt.UTC(), lastPolled, job.Deadline.UTC(), job.PollAttempts, job.PlayerURL, job.ErrorDetail,
	)
	return err
}

func (r *Repository) GetAssetJob(ctx context.Context, id domain.AssetJobID) (domain.AssetJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM asset_jobs WHERE id = ?`, string(id))
	job, err := scanAssetJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AssetJob{}, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, id)
	}
	return job, err
}

// ListAssetJobs returns jobs newest first. An empty convID lists every job.
func (r *Repository) ListAssetJobs(ctx context.Context, convID domain.ConversationID) ([]domain.AssetJob, error) {
	query := `SELECT ` + assetColumns + ` FROM asset_jobs`
	var args []any
	if convID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, string(convID))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []domain.AssetJob{}
	for rows.Next() {
		job, err := scanAssetJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssetJob(s scanner) (domain.AssetJob, error) {
	var job domain.AssetJob
	var idStr, convStr, stateStr string
	var title, externalID, playerURL, errorDetail sql.NullString
	var lastPolled sql.NullTime

	if err := s.Scan(&idStr, &convStr, &title, &externalID, &stateStr, &job.CreatedAt, &lastPolled,
		&job.Deadline, &job.PollAttempts, &playerURL, &errorDetail); err != nil {
		return domain.AssetJob{}, err
	}
	job.ID = domain.AssetJobID(idStr)
	job.ConversationID = domain.ConversationID(convStr)
	job.State = domain.AssetState(stateStr)
	job.Title = title.String
	job.ExternalAssetID = externalID.String
	job.PlayerURL = playerURL.String
	job.ErrorDetail = errorDetail.String
	if lastPolled.Valid {
		job.LastPolledAt = lastPolled.Time
	}
	return job, nil
}
