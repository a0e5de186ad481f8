// Package web provides HTTP request and response types for the approval API.
package web

// DecisionRequest represents the request body for approving or rejecting
// an approval record.
type DecisionRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Comment    string `json:"comment,omitempty"`
}

// DecisionErrorResponse is returned when a decision could not be applied
// for a caller-side reason.
type DecisionErrorResponse struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
