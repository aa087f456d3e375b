package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"labelcheck/internal/application/crdt"
	"labelcheck/internal/application/models"
	"labelcheck/internal/notify"
	dErrors "labelcheck/pkg/domain-errors"
)

const syncStateKey = "syncState"

// MergeClientSync records which patch keys a client changed. A syncState key,
// when present, must name a valid sync state and becomes the new state;
// otherwise the application is marked synced. Status never changes.
// It returns (nil, nil) when the application does not exist.
func (s *Service) MergeClientSync(ctx context.Context, id string, patch map[string]any) (_ *models.Application, err error) {
	ctx, end := s.startSpan(ctx, "MergeClientSync", attribute.String("application_id", id))
	defer func() { end(err) }()

	if len(patch) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "sync patch must not be empty")
	}
	state := models.SyncSynced
	if raw, ok := patch[syncStateKey]; ok {
		str, isString := raw.(string)
		if !isString || !models.SyncState(str).IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid syncState: %v", raw))
		}
		state = models.SyncState(str)
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var after *models.Application
	err = s.locks.run(ctx, id, func(ctx context.Context) error {
		var err error
		_, after, err = s.mutate(ctx, id, func(_ *models.Application, next int64, at time.Time) ([]models.Event, error) {
			ev, err := models.NewEvent(id, models.EventSyncMerged, models.SyncMergedPayload{
				ChangedKeys: keys,
				SyncState:   state,
				Source:      models.SyncSourcePatch,
			}, next, at)
			return []models.Event{ev}, err
		})
		return err
	})
	if err != nil || after == nil {
		return nil, err
	}
	s.publish(notify.Notification{
		Type:          notify.TypeSyncAck,
		ApplicationID: id,
		BatchID:       after.BatchID,
		Scope:         notify.ScopeApplication,
		Data: notify.Data(map[string]any{
			"source":      models.SyncSourcePatch,
			"changedKeys": keys,
			"syncState":   after.SyncState,
		}),
	})
	return after, nil
}

// AppendCrdtOps stamps ops as written by actorID, merges them into the
// application's operation log and persists them. It returns the merged log.
//
// Persistence failure is never absorbed: a SyncFailed event is appended and a
// sync_failed error returned so the client keeps its queue and retries.
// It returns (nil, nil) when the application does not exist.
func (s *Service) AppendCrdtOps(ctx context.Context, id, actorID string, ops []models.Operation) (_ []models.Operation, err error) {
	ctx, end := s.startSpan(ctx, "AppendCrdtOps", attribute.String("application_id", id), attribute.Int("ops", len(ops)))
	defer func() { end(err) }()

	if actorID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actorId is required")
	}
	for _, op := range ops {
		if op.Sequence < 1 {
			return nil, dErrors.New(dErrors.CodeValidation, "operation sequence must be at least 1")
		}
		if len(op.Payload) > 0 && !json.Valid(op.Payload) {
			return nil, dErrors.New(dErrors.CodeValidation, "operation payload must be valid JSON")
		}
	}

	var (
		merged  []models.Operation
		after   *models.Application
		saveErr error
		missing bool
	)
	err = s.locks.run(ctx, id, func(ctx context.Context) error {
		exists, err := s.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			missing = true
			return nil
		}
		existing, err := s.store.ListOperations(ctx, id)
		if err != nil {
			return translate(err, "failed to read operation log")
		}
		if len(ops) == 0 {
			merged = existing
			return nil
		}

		stamped := s.stamp(id, actorID, ops)
		s.metrics.AddCrdtOps(len(stamped))
		if saveErr = s.store.SaveOperations(ctx, id, stamped); saveErr != nil {
			s.metrics.IncSyncFailure()
			_, after, err = s.mutate(ctx, id, func(_ *models.Application, next int64, at time.Time) ([]models.Event, error) {
				ev, err := models.NewEvent(id, models.EventSyncFailed, models.SyncFailedPayload{Reason: saveErr.Error()}, next, at)
				return []models.Event{ev}, err
			})
			return err
		}

		merged = crdt.Merge(existing, stamped)
		keys := changedKeys(stamped)
		_, after, err = s.mutate(ctx, id, func(_ *models.Application, next int64, at time.Time) ([]models.Event, error) {
			ev, err := models.NewEvent(id, models.EventSyncMerged, models.SyncMergedPayload{
				ChangedKeys: keys,
				SyncState:   models.SyncSynced,
				Source:      models.SyncSourceCRDT,
				OpCount:     len(stamped),
			}, next, at)
			return []models.Event{ev}, err
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, nil
	}

	if saveErr != nil {
		s.logger.ErrorContext(ctx, "crdt operations could not be persisted",
			"application_id", id,
			"actor_id", actorID,
			"ops", len(ops),
			"error", saveErr,
		)
		if after != nil {
			s.publishStatus(after, after.Status)
		}
		return nil, dErrors.Wrap(saveErr, dErrors.CodeSyncFailed, "crdt operations could not be persisted")
	}
	if after != nil {
		s.publish(notify.Notification{
			Type:          notify.TypeSyncAck,
			ApplicationID: id,
			BatchID:       after.BatchID,
			Scope:         notify.ScopeApplication,
			Data: notify.Data(map[string]any{
				"source":       models.SyncSourceCRDT,
				"actorId":      actorID,
				"accepted":     len(ops),
				"total":        len(merged),
				"lastSequence": lastSequence(merged),
				"syncState":    after.SyncState,
			}),
		})
	}
	return merged, nil
}

// ListCrdtOps returns the merged operation log with sequence greater than after.
func (s *Service) ListCrdtOps(ctx context.Context, id string, after int64) (_ []models.Operation, err error) {
	ctx, end := s.startSpan(ctx, "ListCrdtOps", attribute.String("application_id", id))
	defer func() { end(err) }()

	exists, err := s.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	ops, err := s.store.ListOperations(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to read operation log")
	}
	return crdt.After(ops, after), nil
}

func (s *Service) exists(ctx context.Context, id string) (bool, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

func (s *Service) stamp(id, actorID string, ops []models.Operation) []models.Operation {
	now := s.timestamp()
	out := make([]models.Operation, len(ops))
	for i, op := range ops {
		op.ApplicationID = id
		op.ActorID = actorID
		if op.ID == "" {
			op.ID = uuid.NewString()
		}
		if op.CreatedAt.IsZero() {
			op.CreatedAt = now
		} else {
			op.CreatedAt = op.CreatedAt.UTC().Truncate(time.Microsecond)
		}
		if len(op.Payload) == 0 {
			op.Payload = json.RawMessage(`{}`)
		}
		out[i] = op
	}
	return out
}

// changedKeys collects the top-level keys of object payloads.
func changedKeys(ops []models.Operation) []string {
	seen := make(map[string]struct{})
	for _, op := range ops {
		var obj map[string]json.RawMessage
		if json.Unmarshal(op.Payload, &obj) != nil {
			continue
		}
		for k := range obj {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func lastSequence(ops []models.Operation) int64 {
	var last int64
	for _, op := range ops {
		last = max(last, op.Sequence)
	}
	return last
}
