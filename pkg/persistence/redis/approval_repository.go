package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
)

const (
	approvalKeyPrefix  = "greenlight:approval:"
	approvalAllKey     = "greenlight:approvals"
	entityKeyPrefix    = "greenlight:entity:"
	approverKeyPrefix  = "greenlight:approver:"
	transitionAttempts = 10
)

func approvalKey(id string) string {
	return approvalKeyPrefix + id
}

func entityKey(entityID, entityType string) string {
	return entityKeyPrefix + entityType + ":" + entityID
}

func approverKey(approverID string) string {
	return approverKeyPrefix + approverID
}

// ApprovalRepository stores approval records as JSON values in Redis with
// entity and approver index sets. Transitions run inside WATCH/MULTI
// transactions, so a concurrent write to the same record aborts the
// attempt and it is retried against the fresh state.
type ApprovalRepository struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

func NewApprovalRepository(client goredis.UniversalClient, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		client: client,
		logger: logger.With("module", "redis_approvals"),
	}
}

func (r *ApprovalRepository) Save(ctx context.Context, record *models.ApprovalRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return persistence.NewApprovalError("Save", record.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, approvalKey(record.ID), data, 0)
	pipe.SAdd(ctx, approvalAllKey, record.ID)
	pipe.SAdd(ctx, entityKey(record.EntityID, record.EntityType), record.ID)

	if record.ApproverID != "" {
		pipe.SAdd(ctx, approverKey(record.ApproverID), record.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewApprovalError("Save", record.ID, err)
	}

	return nil
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRecord, error) {
	raw, err := r.client.Get(ctx, approvalKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewApprovalError("GetByID", id, persistence.ErrApprovalNotFound)
		}

		return nil, persistence.NewApprovalError("GetByID", id, err)
	}

	record, err := decodeApproval(raw)
	if err != nil {
		return nil, persistence.NewApprovalError("GetByID", id, err)
	}

	return record, nil
}

func (r *ApprovalRepository) FindByEntity(ctx context.Context, entityID, entityType string) ([]*models.ApprovalRecord, error) {
	records, err := r.fetchSet(ctx, entityKey(entityID, entityType))
	if err != nil {
		return nil, fmt.Errorf("failed to find approvals for %s %s: %w", entityType, entityID, err)
	}

	return records, nil
}

func (r *ApprovalRepository) FindByApprover(ctx context.Context, approverID string, status models.ApprovalStatus) ([]*models.ApprovalRecord, error) {
	records, err := r.fetchSet(ctx, approverKey(approverID))
	if err != nil {
		return nil, fmt.Errorf("failed to find approvals for approver %s: %w", approverID, err)
	}

	filtered := make([]*models.ApprovalRecord, 0, len(records))

	for _, record := range records {
		if record.Status == status {
			filtered = append(filtered, record)
		}
	}

	return filtered, nil
}

func (r *ApprovalRepository) All(ctx context.Context) ([]*models.ApprovalRecord, error) {
	records, err := r.fetchSet(ctx, approvalAllKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	return records, nil
}

func (r *ApprovalRepository) Transition(
	ctx context.Context,
	id string,
	from, to models.ApprovalStatus,
	change persistence.TransitionChange,
) (*models.ApprovalRecord, error) {
	var updated *models.ApprovalRecord

	err := r.compareAndSwap(ctx, id, func(record *models.ApprovalRecord) (bool, error) {
		if record.Status != from {
			return false, &persistence.StatusConflictError{ApprovalID: id, Status: record.Status}
		}

		record.Status = to

		if change.ApproverID != "" {
			record.ApproverID = change.ApproverID
		}

		if change.Comment != "" {
			record.Comment = change.Comment
		}

		if !change.DecidedAt.IsZero() {
			decidedAt := change.DecidedAt
			record.DecidedAt = &decidedAt
		}

		updated = record

		return true, nil
	})
	if err != nil {
		if errors.Is(err, persistence.ErrApprovalNotFound) || persistence.IsAlreadyDecided(err) {
			return nil, err
		}

		return nil, persistence.NewApprovalError("Transition", id, err)
	}

	return updated, nil
}

func (r *ApprovalRepository) ExpirePendingAfter(ctx context.Context, entityID, entityType string, after time.Time) ([]string, error) {
	records, err := r.FindByEntity(ctx, entityID, entityType)
	if err != nil {
		return nil, err
	}

	var expired []string

	for _, candidate := range records {
		if candidate.Status != models.ApprovalStatusPending || !candidate.CreatedAt.After(after) {
			continue
		}

		applied := false

		err := r.compareAndSwap(ctx, candidate.ID, func(record *models.ApprovalRecord) (bool, error) {
			// Re-checked inside the transaction: a concurrent decision
			// between the scan and the swap leaves the record untouched.
			if record.Status != models.ApprovalStatusPending || !record.CreatedAt.After(after) {
				return false, nil
			}

			now := time.Now().UTC()
			record.Status = models.ApprovalStatusExpired
			record.DecidedAt = &now
			applied = true

			return true, nil
		})
		if err != nil {
			if errors.Is(err, persistence.ErrApprovalNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to expire approval %s: %w", candidate.ID, err)
		}

		if applied {
			expired = append(expired, candidate.ID)
		}
	}

	return expired, nil
}

func (r *ApprovalRepository) EscalatePendingBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	records, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	var escalated []string

	for _, candidate := range records {
		if candidate.Status != models.ApprovalStatusPending || !candidate.CreatedAt.Before(cutoff) {
			continue
		}

		applied := false

		err := r.compareAndSwap(ctx, candidate.ID, func(record *models.ApprovalRecord) (bool, error) {
			if record.Status != models.ApprovalStatusPending || !record.CreatedAt.Before(cutoff) {
				return false, nil
			}

			now := time.Now().UTC()
			record.Status = models.ApprovalStatusEscalated
			record.DecidedAt = &now
			applied = true

			return true, nil
		})
		if err != nil {
			if errors.Is(err, persistence.ErrApprovalNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to escalate approval %s: %w", candidate.ID, err)
		}

		if applied {
			escalated = append(escalated, candidate.ID)
		}
	}

	return escalated, nil
}

// compareAndSwap loads the record under WATCH, applies mutate, and writes
// the result back inside the transaction. A false return from mutate
// skips the write. The whole attempt is retried when a concurrent write
// invalidates the watched key.
func (r *ApprovalRepository) compareAndSwap(
	ctx context.Context,
	id string,
	mutate func(record *models.ApprovalRecord) (bool, error),
) error {
	key := approvalKey(id)

	txn := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return persistence.ErrApprovalNotFound
			}

			return err
		}

		record, err := decodeApproval(raw)
		if err != nil {
			return err
		}

		previousApprover := record.ApproverID

		write, err := mutate(record)
		if err != nil {
			return err
		}

		if !write {
			return nil
		}

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			if previousApprover != "" && previousApprover != record.ApproverID {
				pipe.SRem(ctx, approverKey(previousApprover), record.ID)
			}

			if record.ApproverID != "" {
				pipe.SAdd(ctx, approverKey(record.ApproverID), record.ID)
			}

			return nil
		})

		return err
	}

	for attempt := 0; attempt < transitionAttempts; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}

		return err
	}

	return fmt.Errorf("approval %s: transaction kept failing after %d attempts", id, transitionAttempts)
}

func (r *ApprovalRepository) fetchSet(ctx context.Context, setKey string) ([]*models.ApprovalRecord, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []*models.ApprovalRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = approvalKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*models.ApprovalRecord, 0, len(values))

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry whose record was removed out of band.
			r.logger.Warn("Skipping dangling approval index entry", "id", ids[i], "set", setKey)

			continue
		}

		record, err := decodeApproval(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode approval %s: %w", ids[i], err)
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func decodeApproval(raw string) (*models.ApprovalRecord, error) {
	var record models.ApprovalRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}

	return &record, nil
}
