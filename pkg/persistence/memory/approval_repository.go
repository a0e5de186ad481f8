package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
)

// ApprovalRepository stores approval records in a map guarded by a single
// mutex. All reads return clones so callers never share mutable state
// with the store; all check-then-set sequences run under the lock, which
// is what makes Transition and the batch transitions atomic.
type ApprovalRepository struct {
	mu      sync.RWMutex
	records map[string]*models.ApprovalRecord
}

func NewApprovalRepository() *ApprovalRepository {
	return &ApprovalRepository{
		records: make(map[string]*models.ApprovalRecord),
	}
}

func (r *ApprovalRepository) Save(_ context.Context, record *models.ApprovalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return persistence.NewApprovalError("Save", record.ID, persistence.ErrApprovalAlreadyExists)
	}

	r.records[record.ID] = record.Clone()

	return nil
}

func (r *ApprovalRepository) GetByID(_ context.Context, id string) (*models.ApprovalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, persistence.NewApprovalError("GetByID", id, persistence.ErrApprovalNotFound)
	}

	return record.Clone(), nil
}

func (r *ApprovalRepository) FindByEntity(_ context.Context, entityID, entityType string) ([]*models.ApprovalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []*models.ApprovalRecord

	for _, record := range r.records {
		if record.EntityID == entityID && record.EntityType == entityType {
			found = append(found, record.Clone())
		}
	}

	sortByCreatedAt(found)

	return found, nil
}

func (r *ApprovalRepository) FindByApprover(_ context.Context, approverID string, status models.ApprovalStatus) ([]*models.ApprovalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []*models.ApprovalRecord

	for _, record := range r.records {
		if record.ApproverID == approverID && record.Status == status {
			found = append(found, record.Clone())
		}
	}

	sortByCreatedAt(found)

	return found, nil
}

func (r *ApprovalRepository) All(_ context.Context) ([]*models.ApprovalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.ApprovalRecord, 0, len(r.records))
	for _, record := range r.records {
		all = append(all, record.Clone())
	}

	sortByCreatedAt(all)

	return all, nil
}

func (r *ApprovalRepository) Transition(
	_ context.Context,
	id string,
	from, to models.ApprovalStatus,
	change persistence.TransitionChange,
) (*models.ApprovalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return nil, persistence.NewApprovalError("Transition", id, persistence.ErrApprovalNotFound)
	}

	if record.Status != from {
		return nil, &persistence.StatusConflictError{ApprovalID: id, Status: record.Status}
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

	return record.Clone(), nil
}

func (r *ApprovalRepository) ExpirePendingAfter(_ context.Context, entityID, entityType string, after time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string

	for _, record := range r.records {
		if record.EntityID != entityID || record.EntityType != entityType {
			continue
		}

		// Re-checked under the lock: a sibling decided concurrently is
		// left untouched.
		if record.Status == models.ApprovalStatusPending && record.CreatedAt.After(after) {
			record.Status = models.ApprovalStatusExpired
			decidedAt := time.Now().UTC()
			record.DecidedAt = &decidedAt
			expired = append(expired, record.ID)
		}
	}

	sort.Strings(expired)

	return expired, nil
}

func (r *ApprovalRepository) EscalatePendingBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var escalated []string

	for _, record := range r.records {
		if record.Status == models.ApprovalStatusPending && record.CreatedAt.Before(cutoff) {
			record.Status = models.ApprovalStatusEscalated
			decidedAt := time.Now().UTC()
			record.DecidedAt = &decidedAt
			escalated = append(escalated, record.ID)
		}
	}

	sort.Strings(escalated)

	return escalated, nil
}

func sortByCreatedAt(records []*models.ApprovalRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
