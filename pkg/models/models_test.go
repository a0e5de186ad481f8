package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateByName_FallsBackToStandard(t *testing.T) {
	template := TemplateByName("no_such_template")

	assert.Equal(t, "standard", template.Name)
	assert.Equal(t, []StepName{
		StepSubmission,
		StepInitialReview,
		StepManagerApproval,
		StepFinalApproval,
		StepCompleted,
	}, template.BaseSteps)
}

func TestTemplateByName_ReturnsCopies(t *testing.T) {
	first := TemplateByName("value_based")
	first.BaseSteps[0] = StepCompleted
	first.Rules[0].Priority = 99

	second := TemplateByName("value_based")
	assert.Equal(t, StepSubmission, second.BaseSteps[0])
	assert.Equal(t, 1, second.Rules[0].Priority)
}

func TestTemplateNames(t *testing.T) {
	names := TemplateNames()

	assert.Equal(t, []string{"comprehensive", "simple", "standard", "type_based", "value_based"}, names)
}

func TestStepName_Markers(t *testing.T) {
	assert.True(t, StepSubmission.IsMarker())
	assert.True(t, StepCompleted.IsMarker())
	assert.True(t, StepRejected.IsMarker())
	assert.False(t, StepManagerApproval.IsMarker())
	assert.True(t, StepLegalReview.RequiresApproval())
}

func TestApprovalStatus_Terminal(t *testing.T) {
	assert.False(t, ApprovalStatusPending.Terminal())
	assert.True(t, ApprovalStatusApproved.Terminal())
	assert.True(t, ApprovalStatusRejected.Terminal())
	assert.True(t, ApprovalStatusEscalated.Terminal())
	assert.True(t, ApprovalStatusExpired.Terminal())
}

func TestParseApprovalPriority(t *testing.T) {
	assert.Equal(t, PriorityUrgent, ParseApprovalPriority("urgent"))
	assert.Equal(t, PriorityNormal, ParseApprovalPriority(""))
	assert.Equal(t, PriorityNormal, ParseApprovalPriority("whenever"))
}

func TestApprovalRecord_Overdue(t *testing.T) {
	now := time.Now().UTC()
	record := &ApprovalRecord{
		Status:    ApprovalStatusPending,
		CreatedAt: now.Add(-5 * 24 * time.Hour),
	}

	assert.True(t, record.Overdue(3*24*time.Hour, now))
	assert.False(t, record.Overdue(7*24*time.Hour, now))

	record.Status = ApprovalStatusEscalated
	assert.False(t, record.Overdue(3*24*time.Hour, now))
}

func TestApprovalRecord_Clone(t *testing.T) {
	decidedAt := time.Now().UTC()
	record := &ApprovalRecord{ID: "a", Status: ApprovalStatusApproved, DecidedAt: &decidedAt}

	clone := record.Clone()
	require.NotNil(t, clone.DecidedAt)

	*clone.DecidedAt = decidedAt.Add(time.Hour)
	clone.ID = "b"

	assert.Equal(t, "a", record.ID)
	assert.Equal(t, decidedAt, *record.DecidedAt)
}
