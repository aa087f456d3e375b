package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"labelcheck/internal/batch/models"
	"labelcheck/pkg/platform/sentinel"
	txcontext "labelcheck/pkg/platform/tx"
)

// Postgres persists batch jobs, items and attempts.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const jobColumns = `id, application_id, actor_id, regulatory_profile, total_items, discovered_items,
	queued_items, processing_items, completed_items, failed_items, status, ingest_status,
	error_summary, created_at, updated_at, completed_at`

const itemColumns = `id, batch_id, item_index, client_label_id, regulatory_profile, expected, images,
	status, retry_count, last_error_code, last_error_message, application_id, updated_at`

func (s *Postgres) SaveJob(ctx context.Context, job *models.Job) error {
	var completedAt sql.NullTime
	if job.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}
	query := `
		INSERT INTO batch_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			total_items = EXCLUDED.total_items,
			discovered_items = EXCLUDED.discovered_items,
			queued_items = EXCLUDED.queued_items,
			processing_items = EXCLUDED.processing_items,
			completed_items = EXCLUDED.completed_items,
			failed_items = EXCLUDED.failed_items,
			status = EXCLUDED.status,
			ingest_status = EXCLUDED.ingest_status,
			error_summary = EXCLUDED.error_summary,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		job.ID,
		job.ApplicationID,
		nullString(job.ActorID),
		string(job.Profile),
		job.TotalItems,
		job.DiscoveredItems,
		job.QueuedItems,
		job.ProcessingItems,
		job.CompletedItems,
		job.FailedItems,
		string(job.Status),
		string(job.IngestStatus),
		nullString(job.ErrorSummary),
		job.CreatedAt,
		job.UpdatedAt,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("save batch job: %w", err)
	}
	return nil
}

func (s *Postgres) FindJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+jobColumns+` FROM batch_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find batch job: %w", err)
	}
	return job, nil
}

// SaveItems upserts every item in a single statement.
func (s *Postgres) SaveItems(ctx context.Context, items ...models.Item) error {
	if len(items) == 0 {
		return nil
	}
	n := len(items)
	var (
		ids, batches, labels, profiles = make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		expected, images, statuses     = make([]string, n), make([]string, n), make([]string, n)
		codes, messages, apps, updated = make([]string, n), make([]string, n), make([]string, n), make([]string, n)
		indexes, retries               = make([]int64, n), make([]int64, n)
	)
	for i, it := range items {
		exp, err := json.Marshal(it.Expected)
		if err != nil {
			return fmt.Errorf("marshal expected: %w", err)
		}
		imgs, err := json.Marshal(it.Images)
		if err != nil {
			return fmt.Errorf("marshal images: %w", err)
		}
		if it.Images == nil {
			imgs = []byte("[]")
		}
		ids[i], batches[i], labels[i], profiles[i] = it.ID, it.BatchID, it.ClientLabelID, string(it.RegulatoryProfile)
		expected[i], images[i], statuses[i] = string(exp), string(imgs), string(it.Status)
		codes[i], messages[i], apps[i] = it.LastErrorCode, it.LastErrorMessage, it.ApplicationID
		updated[i] = it.UpdatedAt.UTC().Format(time.RFC3339Nano)
		indexes[i], retries[i] = int64(it.Index), int64(it.RetryCount)
	}
	query := `
		INSERT INTO batch_items (` + itemColumns + `)
		SELECT id, batch_id, item_index, client_label_id, regulatory_profile, expected, images,
			status, retry_count, NULLIF(last_error_code, ''), NULLIF(last_error_message, ''),
			NULLIF(application_id, ''), updated_at
		FROM unnest(
			$1::text[], $2::text[], $3::int[], $4::text[], $5::text[], $6::jsonb[], $7::jsonb[],
			$8::text[], $9::int[], $10::text[], $11::text[], $12::text[], $13::timestamptz[]
		) AS t(id, batch_id, item_index, client_label_id, regulatory_profile, expected, images,
			status, retry_count, last_error_code, last_error_message, application_id, updated_at)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			retry_count = EXCLUDED.retry_count,
			last_error_code = EXCLUDED.last_error_code,
			last_error_message = EXCLUDED.last_error_message,
			application_id = EXCLUDED.application_id,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		pq.Array(ids),
		pq.Array(batches),
		pq.Array(indexes),
		pq.Array(labels),
		pq.Array(profiles),
		pq.Array(expected),
		pq.Array(images),
		pq.Array(statuses),
		pq.Array(retries),
		pq.Array(codes),
		pq.Array(messages),
		pq.Array(apps),
		pq.Array(updated),
	)
	if err != nil {
		return fmt.Errorf("save batch items: %w", err)
	}
	return nil
}

func (s *Postgres) FindItem(ctx context.Context, id string) (*models.Item, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+itemColumns+` FROM batch_items WHERE id = $1`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch item %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find batch item: %w", err)
	}
	return it, nil
}

func (s *Postgres) ListItems(ctx context.Context, batchID string, filter models.ItemFilter) (models.ItemPage, error) {
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM batch_jobs WHERE id = $1)`, batchID,
	).Scan(&exists); err != nil {
		return models.ItemPage{}, fmt.Errorf("check batch job: %w", err)
	}
	if !exists {
		return models.ItemPage{}, fmt.Errorf("batch %s: %w", batchID, sentinel.ErrNotFound)
	}

	var status sql.NullString
	if filter.Status != nil {
		status = sql.NullString{String: string(*filter.Status), Valid: true}
	}
	var limit sql.NullInt64
	if filter.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(filter.Limit), Valid: true}
	}

	page := models.ItemPage{Items: []models.Item{}}
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM batch_items WHERE batch_id = $1 AND ($2::text IS NULL OR status = $2)`,
		batchID, status,
	).Scan(&page.Total); err != nil {
		return models.ItemPage{}, fmt.Errorf("count batch items: %w", err)
	}

	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM batch_items
		WHERE batch_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY item_index
		LIMIT $3 OFFSET $4
	`, batchID, status, limit, filter.Offset)
	if err != nil {
		return models.ItemPage{}, fmt.Errorf("list batch items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return models.ItemPage{}, fmt.Errorf("scan batch item: %w", err)
		}
		page.Items = append(page.Items, *it)
	}
	if err := rows.Err(); err != nil {
		return models.ItemPage{}, fmt.Errorf("iterate batch items: %w", err)
	}
	return page, nil
}

func (s *Postgres) AppendAttempt(ctx context.Context, attempt models.Attempt) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO batch_item_attempts (id, batch_item_id, attempt_no, outcome, error_code, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		attempt.ID,
		attempt.BatchItemID,
		attempt.AttemptNo,
		string(attempt.Outcome),
		nullString(attempt.ErrorCode),
		nullString(attempt.ErrorMessage),
		attempt.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("attempt %s/%d: %w", attempt.BatchItemID, attempt.AttemptNo, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func (s *Postgres) ListAttempts(ctx context.Context, itemID string) ([]models.Attempt, error) {
	if _, err := s.FindItem(ctx, itemID); err != nil {
		return nil, err
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, batch_item_id, attempt_no, outcome, error_code, error_message, created_at
		FROM batch_item_attempts
		WHERE batch_item_id = $1
		ORDER BY attempt_no
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	var out []models.Attempt
	for rows.Next() {
		var (
			a             models.Attempt
			code, message sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.BatchItemID, &a.AttemptNo, &a.Outcome, &code, &message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.ErrorCode = code.String
		a.ErrorMessage = message.String
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job            models.Job
		actor, summary sql.NullString
		completedAt    sql.NullTime
	)
	err := row.Scan(
		&job.ID,
		&job.ApplicationID,
		&actor,
		&job.Profile,
		&job.TotalItems,
		&job.DiscoveredItems,
		&job.QueuedItems,
		&job.ProcessingItems,
		&job.CompletedItems,
		&job.FailedItems,
		&job.Status,
		&job.IngestStatus,
		&summary,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	job.ActorID = actor.String
	job.ErrorSummary = summary.String
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	return &job, nil
}

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		it                   models.Item
		expected, images     []byte
		code, message, appID sql.NullString
	)
	err := row.Scan(
		&it.ID,
		&it.BatchID,
		&it.Index,
		&it.ClientLabelID,
		&it.RegulatoryProfile,
		&expected,
		&images,
		&it.Status,
		&it.RetryCount,
		&code,
		&message,
		&appID,
		&it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(expected, &it.Expected); err != nil {
		return nil, fmt.Errorf("unmarshal expected: %w", err)
	}
	if err := json.Unmarshal(images, &it.Images); err != nil {
		return nil, fmt.Errorf("unmarshal images: %w", err)
	}
	it.LastErrorCode = code.String
	it.LastErrorMessage = message.String
	it.ApplicationID = appID.String
	it.UpdatedAt = it.UpdatedAt.UTC()
	return &it, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
