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

	"labelcheck/internal/application/models"
	"labelcheck/pkg/platform/sentinel"
	txcontext "labelcheck/pkg/platform/tx"
)

// Postgres persists applications, events and CRDT operations.
// It is pure I/O: ordering, projection and merge rules live in the service.
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

const applicationColumns = `id, document_id, regulatory_profile, submission_type, status, sync_state,
	brand_name, class_type, checks, owner_id, owner_claimed, batch_id, latest_quick_check,
	event_count, last_event_at, created_at, updated_at`

func (s *Postgres) SaveApplication(ctx context.Context, app *models.Application) error {
	checks, err := json.Marshal(app.Checks)
	if err != nil {
		return fmt.Errorf("marshal checks: %w", err)
	}
	var latest []byte
	if app.LatestQuickCheck != nil {
		if latest, err = json.Marshal(app.LatestQuickCheck); err != nil {
			return fmt.Errorf("marshal latest quick check: %w", err)
		}
	}
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			sync_state = EXCLUDED.sync_state,
			brand_name = EXCLUDED.brand_name,
			class_type = EXCLUDED.class_type,
			checks = EXCLUDED.checks,
			owner_id = EXCLUDED.owner_id,
			owner_claimed = EXCLUDED.owner_claimed,
			latest_quick_check = EXCLUDED.latest_quick_check,
			event_count = EXCLUDED.event_count,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = EXCLUDED.updated_at
		WHERE applications.event_count <= EXCLUDED.event_count
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		app.ID,
		app.DocumentID,
		string(app.RegulatoryProfile),
		string(app.SubmissionType),
		string(app.Status),
		string(app.SyncState),
		nullString(app.BrandName),
		nullString(app.ClassType),
		checks,
		nullString(app.OwnerID),
		app.OwnerClaimed,
		nullString(app.BatchID),
		latest,
		app.EventCount,
		app.LastEventAt,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save application: %w", err)
	}
	return nil
}

func (s *Postgres) FindApplication(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	app, err := scanApplication(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *Postgres) ListApplications(ctx context.Context) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications ORDER BY updated_at DESC, id`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

func (s *Postgres) AppendEvents(ctx context.Context, events ...models.Event) error {
	if len(events) == 0 {
		return nil
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		query := `
			INSERT INTO application_events (id, application_id, sequence, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for _, ev := range events {
			_, err := s.execer(ctx).ExecContext(ctx, query,
				ev.ID, ev.ApplicationID, ev.Sequence, string(ev.Type), []byte(ev.Payload), ev.CreatedAt)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("event %s/%d: %w", ev.ApplicationID, ev.Sequence, sentinel.ErrConflict)
				}
				return fmt.Errorf("insert event: %w", err)
			}
		}
		return nil
	})
}

func (s *Postgres) ListEvents(ctx context.Context, applicationID string) ([]models.Event, error) {
	query := `
		SELECT id, application_id, sequence, event_type, payload, created_at
		FROM application_events
		WHERE application_id = $1
		ORDER BY sequence
	`
	return s.queryEvents(ctx, query, applicationID)
}

func (s *Postgres) ListEventsByType(ctx context.Context, types []models.EventType, since, until time.Time) ([]models.Event, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	query := `
		SELECT id, application_id, sequence, event_type, payload, created_at
		FROM application_events
		WHERE event_type = ANY($1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at, id
	`
	return s.queryEvents(ctx, query, pq.Array(names), nullTime(since), nullTime(until))
}

func (s *Postgres) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var ev models.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.ApplicationID, &ev.Sequence, &ev.Type, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		ev.CreatedAt = ev.CreatedAt.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *Postgres) SaveOperations(ctx context.Context, applicationID string, ops []models.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		// Same identity: keep the row that sorts first by (created_at, op_id),
		// comparing ids bytewise as crdt.Compare does.
		query := `
			INSERT INTO crdt_operations (op_id, application_id, actor_id, sequence, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (application_id, actor_id, sequence) DO UPDATE SET
				op_id = EXCLUDED.op_id,
				payload = EXCLUDED.payload,
				created_at = EXCLUDED.created_at
			WHERE (EXCLUDED.created_at, EXCLUDED.op_id COLLATE "C") < (crdt_operations.created_at, crdt_operations.op_id COLLATE "C")
		`
		for _, op := range ops {
			_, err := s.execer(ctx).ExecContext(ctx, query,
				op.ID, applicationID, op.ActorID, op.Sequence, []byte(op.Payload), op.CreatedAt)
			if err != nil {
				return fmt.Errorf("upsert crdt operation: %w", err)
			}
		}
		return nil
	})
}

func (s *Postgres) ListOperations(ctx context.Context, applicationID string) ([]models.Operation, error) {
	query := `
		SELECT op_id, application_id, actor_id, sequence, payload, created_at
		FROM crdt_operations
		WHERE application_id = $1
		ORDER BY sequence, actor_id COLLATE "C", created_at, op_id COLLATE "C"
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list crdt operations: %w", err)
	}
	defer rows.Close()

	var out []models.Operation
	for rows.Next() {
		var op models.Operation
		var payload []byte
		if err := rows.Scan(&op.ID, &op.ApplicationID, &op.ActorID, &op.Sequence, &payload, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan crdt operation: %w", err)
		}
		op.Payload = json.RawMessage(payload)
		op.CreatedAt = op.CreatedAt.UTC()
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crdt operations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app                        models.Application
		brand, class, owner, batch sql.NullString
		checks, latest             []byte
	)
	err := row.Scan(
		&app.ID,
		&app.DocumentID,
		&app.RegulatoryProfile,
		&app.SubmissionType,
		&app.Status,
		&app.SyncState,
		&brand,
		&class,
		&checks,
		&owner,
		&app.OwnerClaimed,
		&batch,
		&latest,
		&app.EventCount,
		&app.LastEventAt,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.BrandName = brand.String
	app.ClassType = class.String
	app.OwnerID = owner.String
	app.BatchID = batch.String
	app.LastEventAt = app.LastEventAt.UTC()
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	if err := json.Unmarshal(checks, &app.Checks); err != nil {
		return nil, fmt.Errorf("unmarshal checks: %w", err)
	}
	if app.Checks == nil {
		app.Checks = []models.ComplianceCheck{}
	}
	if len(latest) > 0 {
		var qc models.QuickCheckResult
		if err := json.Unmarshal(latest, &qc); err != nil {
			return nil, fmt.Errorf("unmarshal latest quick check: %w", err)
		}
		app.LatestQuickCheck = &qc
	}
	return &app, nil
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

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
