package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlight-engine/greenlight/pkg/eventbus"
	"github.com/greenlight-engine/greenlight/pkg/events"
	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
	"github.com/greenlight-engine/greenlight/pkg/persistence/memory"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ string, event eventbus.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.events = append(d.events, event)
}

func (d *recordingDispatcher) byType(eventType events.EventType) []eventbus.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []eventbus.Event

	for _, event := range d.events {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestService() (*Approval, persistence.Persistence, *recordingDispatcher, *testClock) {
	store := memory.NewPersistence()
	dispatcher := &recordingDispatcher{}
	clock := &testClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}

	service := NewApproval(store, dispatcher, 0, slog.Default())
	service.now = clock.Now

	return service, store, dispatcher, clock
}

func standardApprovers() map[string]string {
	return map[string]string{
		"initial_review":     "reviewer-1",
		"manager_approval":   "manager-1",
		"legal_review":       "counsel-1",
		"finance_approval":   "cfo-1",
		"executive_approval": "ceo-1",
		"final_approval":     "director-1",
	}
}

func createStandardInstance(t *testing.T, service *Approval) *InstanceResult {
	t.Helper()

	result, err := service.CreateWorkflowInstance(context.Background(), CreateInstanceRequest{
		EntityID:    "contract-1",
		EntityType:  "contract",
		RequesterID: "requester-1",
		Template:    "standard",
		Approvers:   standardApprovers(),
	})
	require.NoError(t, err)

	return result
}

func TestCreateWorkflowInstance(t *testing.T) {
	t.Parallel()

	service, _, dispatcher, clock := newTestService()

	result := createStandardInstance(t, service)

	assert.Equal(t, "standard", result.Template)
	assert.Equal(t, []models.StepName{
		models.StepSubmission, models.StepInitialReview,
		models.StepManagerApproval, models.StepFinalApproval, models.StepCompleted,
	}, result.Steps)
	require.Len(t, result.Approvals, 3)
	assert.Empty(t, result.SkippedSteps)

	for i, record := range result.Approvals {
		assert.NotEmpty(t, record.ID)
		assert.Equal(t, models.ApprovalStatusPending, record.Status)
		assert.Equal(t, models.PriorityNormal, record.Priority)
		assert.Equal(t, record.CreatedAt.Add(models.DefaultApprovalTimeout), record.ExpiresAt)
		assert.Nil(t, record.DecidedAt)

		// Records of one instance carry strictly increasing creation
		// times in step order.
		if i > 0 {
			assert.True(t, record.CreatedAt.After(result.Approvals[i-1].CreatedAt))
		} else {
			assert.Equal(t, clock.Now(), record.CreatedAt)
		}
	}

	requested := dispatcher.byType(events.ApprovalRequestedEvent)
	require.Len(t, requested, 3)

	first, ok := requested[0].(events.ApprovalRequested)
	require.True(t, ok)
	assert.Equal(t, models.StepInitialReview, first.StepName)
	assert.Equal(t, "reviewer-1", first.ApproverID)
	assert.Equal(t, "/approvals/"+first.ApprovalID, first.ActionURL)
}

func TestCreateWorkflowInstanceSkipsUnmappedSteps(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	result, err := service.CreateWorkflowInstance(context.Background(), CreateInstanceRequest{
		EntityID:    "contract-2",
		EntityType:  "contract",
		RequesterID: "requester-1",
		Template:    "standard",
		Approvers:   map[string]string{"initial_review": "reviewer-1"},
	})
	require.NoError(t, err)

	require.Len(t, result.Approvals, 1)
	assert.Equal(t, models.StepInitialReview, result.Approvals[0].StepName)
	assert.Equal(t, []models.StepName{models.StepManagerApproval, models.StepFinalApproval}, result.SkippedSteps)
}

func TestCreateWorkflowInstanceValueBasedPlanning(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	result, err := service.CreateWorkflowInstance(context.Background(), CreateInstanceRequest{
		EntityID:    "contract-3",
		EntityType:  "contract",
		RequesterID: "requester-1",
		Template:    "value_based",
		Context:     map[string]any{"contract_value": 2_000_000},
		Approvers:   standardApprovers(),
	})
	require.NoError(t, err)

	assert.Contains(t, result.Steps, models.StepLegalReview)
	assert.NotContains(t, result.Steps, models.StepExecutiveApproval)

	escalated, err := service.CreateWorkflowInstance(context.Background(), CreateInstanceRequest{
		EntityID:    "contract-4",
		EntityType:  "contract",
		RequesterID: "requester-1",
		Template:    "value_based",
		Context:     map[string]any{"contract_value": 6_000_000},
		Approvers:   standardApprovers(),
	})
	require.NoError(t, err)

	assert.Contains(t, escalated.Steps, models.StepLegalReview)
	assert.Contains(t, escalated.Steps, models.StepExecutiveApproval)
}

func TestCreateWorkflowInstanceValidation(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	_, err := service.CreateWorkflowInstance(context.Background(), CreateInstanceRequest{
		EntityType:  "contract",
		RequesterID: "requester-1",
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = service.CreateWorkflowInstance(context.Background(), CreateInstanceRequest{
		EntityID:    "contract-5",
		EntityType:  "contract",
		RequesterID: "requester-1",
		CustomRules: []RuleDefinition{{
			Name: "bad", Field: "value", Condition: "greater_than",
			Threshold: 100, Action: "launch_missiles",
		}},
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestApproveLifecycle(t *testing.T) {
	t.Parallel()

	service, _, dispatcher, clock := newTestService()

	result := createStandardInstance(t, service)
	clock.Advance(2 * time.Hour)

	decision, err := service.Approve(context.Background(), result.Approvals[0].ID, "reviewer-1", "looks good")
	require.NoError(t, err)
	require.True(t, decision.OK)
	assert.Equal(t, models.ApprovalStatusApproved, decision.Approval.Status)
	assert.Equal(t, "looks good", decision.Approval.Comment)
	require.NotNil(t, decision.Approval.DecidedAt)
	assert.Equal(t, clock.Now(), *decision.Approval.DecidedAt)

	approvedEvents := dispatcher.byType(events.ApprovalApprovedEvent)
	require.Len(t, approvedEvents, 1)

	approved, ok := approvedEvents[0].(events.ApprovalApproved)
	require.True(t, ok)
	assert.False(t, approved.AllApproved)

	_, err = service.Approve(context.Background(), result.Approvals[1].ID, "manager-1", "")
	require.NoError(t, err)

	decision, err = service.Approve(context.Background(), result.Approvals[2].ID, "director-1", "")
	require.NoError(t, err)
	require.True(t, decision.OK)

	approvedEvents = dispatcher.byType(events.ApprovalApprovedEvent)
	require.Len(t, approvedEvents, 3)

	last, ok := approvedEvents[2].(events.ApprovalApproved)
	require.True(t, ok)
	assert.True(t, last.AllApproved)
}

func TestApproveFailures(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	result := createStandardInstance(t, service)
	recordID := result.Approvals[0].ID

	decision, err := service.Approve(context.Background(), "no-such-id", "reviewer-1", "")
	require.NoError(t, err)
	assert.False(t, decision.OK)
	assert.Equal(t, CodeNotFound, decision.Code)

	decision, err = service.Approve(context.Background(), recordID, "intruder", "")
	require.NoError(t, err)
	assert.False(t, decision.OK)
	assert.Equal(t, CodeNotAuthorized, decision.Code)

	decision, err = service.Approve(context.Background(), recordID, "reviewer-1", "")
	require.NoError(t, err)
	require.True(t, decision.OK)

	decision, err = service.Approve(context.Background(), recordID, "reviewer-1", "again")
	require.NoError(t, err)
	assert.False(t, decision.OK)
	assert.Equal(t, CodeAlreadyDecided, decision.Code)
	assert.Contains(t, decision.Message, "approved")

	// On a decided record the status outranks the assignment check,
	// even for a caller who was never assigned to it.
	decision, err = service.Approve(context.Background(), recordID, "intruder", "")
	require.NoError(t, err)
	assert.False(t, decision.OK)
	assert.Equal(t, CodeAlreadyDecided, decision.Code)

	_, err = service.Approve(context.Background(), recordID, "", "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestRejectCascade(t *testing.T) {
	t.Parallel()

	service, store, dispatcher, clock := newTestService()

	base := clock.Now()
	saveRecord := func(id string, step models.StepName, approver string, createdAt time.Time) {
		require.NoError(t, store.Approvals().Save(context.Background(), &models.ApprovalRecord{
			ID: id, EntityID: "contract-9", EntityType: "contract",
			StepName: step, RequesterID: "requester-1", ApproverID: approver,
			Status: models.ApprovalStatusPending, Priority: models.PriorityNormal,
			CreatedAt: createdAt, ExpiresAt: createdAt.Add(models.DefaultApprovalTimeout),
		}))
	}

	saveRecord("r1", models.StepInitialReview, "reviewer-1", base)
	saveRecord("r2", models.StepManagerApproval, "manager-1", base.Add(time.Minute))
	saveRecord("r3", models.StepFinalApproval, "director-1", base.Add(2*time.Minute))

	decision, err := service.Approve(context.Background(), "r1", "reviewer-1", "")
	require.NoError(t, err)
	require.True(t, decision.OK)

	decision, err = service.Reject(context.Background(), "r2", "manager-1", "terms unacceptable")
	require.NoError(t, err)
	require.True(t, decision.OK)
	assert.Equal(t, models.ApprovalStatusRejected, decision.Approval.Status)

	r1, err := store.Approvals().GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, r1.Status)

	r3, err := store.Approvals().GetByID(context.Background(), "r3")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusExpired, r3.Status)

	rejectedEvents := dispatcher.byType(events.ApprovalRejectedEvent)
	require.Len(t, rejectedEvents, 1)

	rejected, ok := rejectedEvents[0].(events.ApprovalRejected)
	require.True(t, ok)
	assert.Equal(t, []string{"r3"}, rejected.ExpiredIDs)
	assert.Equal(t, "terms unacceptable", rejected.Comment)
}

func TestRejectCascadeFromCreatedInstance(t *testing.T) {
	t.Parallel()

	service, store, dispatcher, _ := newTestService()

	result := createStandardInstance(t, service)
	require.Len(t, result.Approvals, 3)

	decision, err := service.Reject(context.Background(), result.Approvals[0].ID, "reviewer-1", "missing signatures")
	require.NoError(t, err)
	require.True(t, decision.OK)

	siblings := []string{result.Approvals[1].ID, result.Approvals[2].ID}
	for _, id := range siblings {
		record, err := store.Approvals().GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.ApprovalStatusExpired, record.Status)
	}

	rejectedEvents := dispatcher.byType(events.ApprovalRejectedEvent)
	require.Len(t, rejectedEvents, 1)

	rejected, ok := rejectedEvents[0].(events.ApprovalRejected)
	require.True(t, ok)
	assert.ElementsMatch(t, siblings, rejected.ExpiredIDs)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	result := createStandardInstance(t, service)

	status, err := service.Status(context.Background(), "contract-1", "contract")
	require.NoError(t, err)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 3, status.Pending)
	assert.False(t, status.AllApproved)
	assert.InDelta(t, 0.0, status.CompletionRate, 0.001)

	for _, record := range result.Approvals {
		decision, err := service.Approve(context.Background(), record.ID, record.ApproverID, "")
		require.NoError(t, err)
		require.True(t, decision.OK)
	}

	status, err = service.Status(context.Background(), "contract-1", "contract")
	require.NoError(t, err)
	assert.Equal(t, 3, status.Approved)
	assert.True(t, status.AllApproved)
	assert.InDelta(t, 100.0, status.CompletionRate, 0.001)

	empty, err := service.Status(context.Background(), "nothing", "contract")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.False(t, empty.AllApproved)
}

func TestListPending(t *testing.T) {
	t.Parallel()

	service, _, _, clock := newTestService()

	createStandardInstance(t, service)
	clock.Advance(49 * time.Hour)

	pending, err := service.ListPending(context.Background(), "reviewer-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.StepInitialReview, pending[0].Approval.StepName)
	assert.Equal(t, 2, pending[0].DaysPending)

	none, err := service.ListPending(context.Background(), "stranger")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = service.ListPending(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	service, store, _, clock := newTestService()

	base := clock.Now()
	decidedAfter := func(d time.Duration) *time.Time {
		decided := base.Add(d)

		return &decided
	}

	records := []*models.ApprovalRecord{
		{ID: "s1", EntityID: "c1", EntityType: "contract", StepName: models.StepInitialReview,
			RequesterID: "req", ApproverID: "a1", Status: models.ApprovalStatusApproved,
			CreatedAt: base, DecidedAt: decidedAfter(2 * time.Hour)},
		{ID: "s2", EntityID: "c1", EntityType: "contract", StepName: models.StepManagerApproval,
			RequesterID: "req", ApproverID: "a2", Status: models.ApprovalStatusApproved,
			CreatedAt: base, DecidedAt: decidedAfter(4 * time.Hour)},
		{ID: "s3", EntityID: "c2", EntityType: "contract", StepName: models.StepInitialReview,
			RequesterID: "req", ApproverID: "a1", Status: models.ApprovalStatusRejected,
			CreatedAt: base, DecidedAt: decidedAfter(time.Hour)},
		{ID: "s4", EntityID: "c3", EntityType: "contract", StepName: models.StepInitialReview,
			RequesterID: "req", ApproverID: "a1", Status: models.ApprovalStatusPending,
			CreatedAt: base},
	}
	for _, record := range records {
		record.Priority = models.PriorityNormal
		record.ExpiresAt = base.Add(models.DefaultApprovalTimeout)
		require.NoError(t, store.Approvals().Save(context.Background(), record))
	}

	stats, err := service.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalRequests)
	assert.Equal(t, 2, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.Pending)
	assert.InDelta(t, 50.0, stats.ApprovalRate, 0.001)
	assert.InDelta(t, 25.0, stats.RejectionRate, 0.001)
	assert.InDelta(t, 3.0, stats.AvgApprovalTimeHours, 0.001)
	assert.Equal(t, 0, stats.TotalRules)
}

func TestStatisticsEmpty(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	stats, err := service.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRequests)
	assert.InDelta(t, 0.0, stats.ApprovalRate, 0.001)
	assert.InDelta(t, 0.0, stats.AvgApprovalTimeHours, 0.001)
}

func TestEscalateOverdue(t *testing.T) {
	t.Parallel()

	service, store, dispatcher, clock := newTestService()

	base := clock.Now()
	saveAged := func(id string, age time.Duration) {
		createdAt := base.Add(-age)
		require.NoError(t, store.Approvals().Save(context.Background(), &models.ApprovalRecord{
			ID: id, EntityID: "contract-old", EntityType: "contract",
			StepName: models.StepInitialReview, RequesterID: "req", ApproverID: "a1",
			Status: models.ApprovalStatusPending, Priority: models.PriorityNormal,
			CreatedAt: createdAt, ExpiresAt: createdAt.Add(models.DefaultApprovalTimeout),
		}))
	}

	saveAged("old", 5*24*time.Hour)
	saveAged("fresh", 24*time.Hour)

	escalated, err := service.EscalateOverdue(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, escalated)

	record, err := store.Approvals().GetByID(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusEscalated, record.Status)

	escalatedEvents := dispatcher.byType(events.ApprovalEscalatedEvent)
	require.Len(t, escalatedEvents, 1)

	event, ok := escalatedEvents[0].(events.ApprovalEscalated)
	require.True(t, ok)
	assert.Equal(t, 5, event.DaysPending)

	// A second sweep finds nothing: escalated is terminal.
	escalated, err = service.EscalateOverdue(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, escalated)
}

func TestRuleManagement(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	rule, err := service.CreateRule(context.Background(), RuleDefinition{
		Name:      "high value legal",
		Field:     "value",
		Condition: "greater_than",
		Threshold: 50_000,
		Action:    "add_legal_review",
		Priority:  1,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, models.ActionAddLegalReview, rule.Action)

	rules, err := service.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)

	_, err = service.CreateRule(context.Background(), RuleDefinition{
		Name: "bad threshold", Field: "value",
		Condition: "greater_than", Threshold: "lots", Action: "add_legal_review",
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	require.NoError(t, service.DeleteRule(context.Background(), rule.ID))

	err = service.DeleteRule(context.Background(), rule.ID)
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
}

func TestSeedRules(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	count, err := service.SeedRules(context.Background(), "contract_approval")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	rules, err := service.ListRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 5)

	_, err = service.SeedRules(context.Background(), "nonsense")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestStoredRulesApplyToInstances(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	_, err := service.CreateRule(context.Background(), RuleDefinition{
		Name:      "big deals need the CEO",
		Field:     "value",
		Condition: "greater_than",
		Threshold: 10_000,
		Action:    "add_executive_approval",
		Priority:  1,
	})
	require.NoError(t, err)

	result, err := service.CreateWorkflowInstance(context.Background(), CreateInstanceRequest{
		EntityID:    "contract-7",
		EntityType:  "contract",
		RequesterID: "requester-1",
		Template:    "standard",
		Context:     map[string]any{"value": 20_000},
		Approvers:   standardApprovers(),
	})
	require.NoError(t, err)

	assert.Contains(t, result.Steps, models.StepExecutiveApproval)
}

func TestConcurrentApproves(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	result := createStandardInstance(t, service)
	recordID := result.Approvals[0].ID

	const attempts = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for range attempts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			decision, err := service.Approve(context.Background(), recordID, "reviewer-1", "")
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			defer mu.Unlock()

			if decision.OK {
				successes++
			} else if decision.Code == CodeAlreadyDecided {
				conflicts++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

func TestTemplates(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTestService()

	templates := service.Templates()
	require.Len(t, templates, 5)

	names := make([]string, 0, len(templates))
	for _, template := range templates {
		names = append(names, template.Name)
	}

	assert.Equal(t, []string{"comprehensive", "simple", "standard", "type_based", "value_based"}, names)
}
