package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(id, entityID string, createdAt time.Time) *models.ApprovalRecord {
	return &models.ApprovalRecord{
		ID:          id,
		TenantID:    "tenant-1",
		EntityID:    entityID,
		EntityType:  "contract",
		StepName:    models.StepManagerApproval,
		RequesterID: "requester-1",
		ApproverID:  "approver-1",
		Status:      models.ApprovalStatusPending,
		Priority:    models.PriorityNormal,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(models.DefaultApprovalTimeout),
	}
}

func TestApprovalRepository_SaveAndGet(t *testing.T) {
	repo := NewApprovalRepository()
	record := newRecord("a-1", "contract-1", time.Now().UTC())

	require.NoError(t, repo.Save(t.Context(), record))

	fetched, err := repo.GetByID(t.Context(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, record.EntityID, fetched.EntityID)

	// The store hands out copies.
	fetched.Status = models.ApprovalStatusApproved
	again, err := repo.GetByID(t.Context(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, again.Status)
}

func TestApprovalRepository_SaveDuplicate(t *testing.T) {
	repo := NewApprovalRepository()
	record := newRecord("a-1", "contract-1", time.Now().UTC())

	require.NoError(t, repo.Save(t.Context(), record))
	err := repo.Save(t.Context(), record)
	assert.ErrorIs(t, err, persistence.ErrApprovalAlreadyExists)
}

func TestApprovalRepository_GetByID_NotFound(t *testing.T) {
	repo := NewApprovalRepository()

	_, err := repo.GetByID(t.Context(), "missing")
	assert.True(t, persistence.IsApprovalNotFound(err))
}

func TestApprovalRepository_Transition(t *testing.T) {
	repo := NewApprovalRepository()
	require.NoError(t, repo.Save(t.Context(), newRecord("a-1", "contract-1", time.Now().UTC())))

	decidedAt := time.Now().UTC()
	updated, err := repo.Transition(t.Context(), "a-1",
		models.ApprovalStatusPending, models.ApprovalStatusApproved,
		persistence.TransitionChange{ApproverID: "approver-1", Comment: "fine by me", DecidedAt: decidedAt})
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalStatusApproved, updated.Status)
	require.NotNil(t, updated.DecidedAt)
	assert.Equal(t, decidedAt, *updated.DecidedAt)
	assert.Equal(t, "fine by me", updated.Comment)

	// A second transition fails with the record's actual status.
	_, err = repo.Transition(t.Context(), "a-1",
		models.ApprovalStatusPending, models.ApprovalStatusRejected,
		persistence.TransitionChange{})
	require.True(t, persistence.IsAlreadyDecided(err))

	var conflict *persistence.StatusConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.ApprovalStatusApproved, conflict.Status)
}

func TestApprovalRepository_Transition_Concurrent(t *testing.T) {
	repo := NewApprovalRepository()
	require.NoError(t, repo.Save(t.Context(), newRecord("a-1", "contract-1", time.Now().UTC())))

	const attempts = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for range attempts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := repo.Transition(t.Context(), "a-1",
				models.ApprovalStatusPending, models.ApprovalStatusApproved,
				persistence.TransitionChange{DecidedAt: time.Now().UTC()})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestApprovalRepository_ExpirePendingAfter(t *testing.T) {
	repo := NewApprovalRepository()
	base := time.Now().UTC()

	require.NoError(t, repo.Save(t.Context(), newRecord("a-1", "contract-1", base)))
	require.NoError(t, repo.Save(t.Context(), newRecord("a-2", "contract-1", base.Add(time.Minute))))
	require.NoError(t, repo.Save(t.Context(), newRecord("a-3", "contract-1", base.Add(2*time.Minute))))
	require.NoError(t, repo.Save(t.Context(), newRecord("b-1", "contract-2", base.Add(3*time.Minute))))

	// a-2 was decided before the cascade; it must survive.
	_, err := repo.Transition(t.Context(), "a-2",
		models.ApprovalStatusPending, models.ApprovalStatusApproved,
		persistence.TransitionChange{DecidedAt: base.Add(time.Minute)})
	require.NoError(t, err)

	expired, err := repo.ExpirePendingAfter(t.Context(), "contract-1", "contract", base)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-3"}, expired)

	other, err := repo.GetByID(t.Context(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, other.Status)
}

func TestApprovalRepository_EscalatePendingBefore(t *testing.T) {
	repo := NewApprovalRepository()
	now := time.Now().UTC()

	require.NoError(t, repo.Save(t.Context(), newRecord("old", "contract-1", now.Add(-5*24*time.Hour))))
	require.NoError(t, repo.Save(t.Context(), newRecord("new", "contract-1", now.Add(-time.Hour))))

	cutoff := now.Add(-3 * 24 * time.Hour)

	escalated, err := repo.EscalatePendingBefore(t.Context(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, escalated)

	// Escalated is terminal, so the sweep is idempotent.
	escalated, err = repo.EscalatePendingBefore(t.Context(), cutoff)
	require.NoError(t, err)
	assert.Empty(t, escalated)
}

func TestApprovalRepository_FindByApprover(t *testing.T) {
	repo := NewApprovalRepository()
	base := time.Now().UTC()

	first := newRecord("a-1", "contract-1", base)
	second := newRecord("a-2", "contract-2", base.Add(time.Minute))
	second.ApproverID = "approver-2"

	require.NoError(t, repo.Save(t.Context(), first))
	require.NoError(t, repo.Save(t.Context(), second))

	pending, err := repo.FindByApprover(t.Context(), "approver-1", models.ApprovalStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a-1", pending[0].ID)
}

func TestRuleRepository_CRUD(t *testing.T) {
	repo := NewRuleRepository()

	rule := &models.ApprovalRule{
		ID:        "r-1",
		Name:      "High Value",
		Field:     "contract_value",
		Condition: models.ConditionGreaterThan,
		Threshold: 1_000_000,
		Action:    models.ActionAddLegalReview,
		Priority:  2,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Save(t.Context(), rule))

	fetched, err := repo.GetByID(t.Context(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "High Value", fetched.Name)

	rules, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	require.NoError(t, repo.Delete(t.Context(), "r-1"))
	assert.True(t, persistence.IsRuleNotFound(repo.Delete(t.Context(), "r-1")))
}
