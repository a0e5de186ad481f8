// Package web provides HTTP handlers and REST API endpoints for the
// approval workflow engine.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/greenlight-engine/greenlight/pkg/models"
	"github.com/greenlight-engine/greenlight/pkg/services"
	"github.com/greenlight-engine/greenlight/pkg/workflow"
)

type APIHandlers struct {
	approvalService *services.Approval
	validator       *validator.Validate
}

func NewAPIHandlers(approvalService *services.Approval, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		approvalService: approvalService,
		validator:       validator,
	}
}

// RegisterRoutes wires every endpoint onto the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	app.Post("/workflow-instances", h.CreateWorkflowInstance)
	app.Get("/templates", h.GetTemplates)

	app.Post("/approvals/:id/approve", h.ApproveApproval)
	app.Post("/approvals/:id/reject", h.RejectApproval)
	app.Get("/approvals", h.GetApprovalsByApprover)
	app.Get("/entities/:type/:id/approvals", h.GetEntityApprovals)

	app.Get("/statistics", h.GetStatistics)

	app.Post("/rules", h.CreateRule)
	app.Get("/rules", h.GetRules)
	app.Delete("/rules/:id", h.DeleteRule)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.approvalService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Greenlight API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Greenlight API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateWorkflowInstance(c fiber.Ctx) error {
	var req services.CreateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.approvalService.CreateWorkflowInstance(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"templates": h.approvalService.Templates(),
	})
}

func (h *APIHandlers) ApproveApproval(c fiber.Ctx) error {
	return h.handleDecision(c, h.approvalService.Approve)
}

func (h *APIHandlers) RejectApproval(c fiber.Ctx) error {
	return h.handleDecision(c, h.approvalService.Reject)
}

type decisionFunc func(ctx context.Context, approvalID, approverID, comment string) (*services.DecisionResult, error)

func (h *APIHandlers) handleDecision(c fiber.Ctx, decide decisionFunc) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Approval ID is required")
	}

	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := decide(c.Context(), id, req.ApproverID, req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	if !result.OK {
		return c.Status(decisionStatus(result.Code)).JSON(DecisionErrorResponse{
			OK:      false,
			Code:    result.Code,
			Message: result.Message,
		})
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetEntityApprovals(c fiber.Ctx) error {
	entityType := c.Params("type")
	entityID := c.Params("id")

	if entityType == "" || entityID == "" {
		return badRequest(c, "Entity type and ID are required")
	}

	status, err := h.approvalService.Status(c.Context(), entityID, entityType)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) GetApprovalsByApprover(c fiber.Ctx) error {
	approverID := c.Query("approver_id")
	if approverID == "" {
		return badRequest(c, "approver_id query parameter is required")
	}

	statusParam := c.Query("status", string(models.ApprovalStatusPending))

	status := models.ApprovalStatus(statusParam)
	if !status.Valid() {
		return badRequest(c, "Unknown approval status: "+statusParam)
	}

	if status == models.ApprovalStatusPending {
		pending, err := h.approvalService.ListPending(c.Context(), approverID)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(fiber.Map{"approvals": pending})
	}

	records, err := h.approvalService.ListByApprover(c.Context(), approverID, status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"approvals": records})
}

func (h *APIHandlers) GetStatistics(c fiber.Ctx) error {
	stats, err := h.approvalService.Statistics(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	// Rule definitions arrive as free-form JSON, so schema validation
	// runs before binding into the typed definition.
	var raw map[string]any
	if err := c.Bind().JSON(&raw); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := workflow.ValidateRuleDefinition(raw); err != nil {
		return badRequest(c, err.Error())
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return badRequest(c, "Invalid rule definition")
	}

	var definition services.RuleDefinition
	if err := json.Unmarshal(payload, &definition); err != nil {
		return badRequest(c, "Invalid rule definition")
	}

	rule, err := h.approvalService.CreateRule(c.Context(), definition)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	rules, err := h.approvalService.ListRules(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"rules": rules})
}

func (h *APIHandlers) DeleteRule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Rule ID is required")
	}

	if err := h.approvalService.DeleteRule(c.Context(), id); err != nil {
		if services.IsNotFoundError(err) {
			return notFound(c, "Rule not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
