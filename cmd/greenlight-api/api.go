// Package main provides the Greenlight API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/greenlight-engine/greenlight/pkg/notification"
	"github.com/greenlight-engine/greenlight/pkg/otelhelper"
	"github.com/greenlight-engine/greenlight/pkg/persistence"
	"github.com/greenlight-engine/greenlight/pkg/services"
	"github.com/greenlight-engine/greenlight/pkg/web"
)

type API struct {
	logger          *slog.Logger
	approvalService *services.Approval
	validate        *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	dispatcher notification.Dispatcher,
	timeout time.Duration,
) *API {
	return &API{
		logger:          logger,
		approvalService: services.NewApproval(persistence, dispatcher, timeout, logger),
		validate:        validator.New(validator.WithRequiredStructEnabled()),
	}
}

// SeedRules loads the named built-in rule sets into the rule store.
func (a *API) SeedRules(ctx context.Context, sets []string) error {
	for _, set := range sets {
		count, err := a.approvalService.SeedRules(ctx, set)
		if err != nil {
			return err
		}

		a.logger.InfoContext(ctx, "Loaded rule set", "set", set, "rules", count)
	}

	return nil
}

func (a *API) App(tracer trace.Tracer) *fiber.App {
	handlers := web.NewAPIHandlers(a.approvalService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	if tracer != nil {
		app.Use(tracingMiddleware(tracer))
	}

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Greenlight API")
	})

	handlers.RegisterRoutes(app)

	return app
}

// tracingMiddleware opens one span per request so decision paths show up
// in traces with their outcome status.
func tracingMiddleware(tracer trace.Tracer) fiber.Handler {
	return func(c fiber.Ctx) error {
		ctx, span := otelhelper.StartSpan(c.Context(), tracer,
			c.Method()+" "+c.Route().Path,
			attribute.String(otelhelper.ServiceIDKey, "greenlight-api"),
		)
		defer span.End()

		c.SetContext(ctx)

		err := c.Next()
		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.SetAttributes(attribute.Int("http.status_code", c.Response().StatusCode()))

		return err
	}
}

func (a *API) Start(ctx context.Context, port int) error {
	tracer, err := otelhelper.NewTracer(ctx, "greenlight-api")
	if err != nil {
		a.logger.WarnContext(ctx, "Tracing disabled", "error", err)

		tracer = nil
	}

	app := a.App(tracer)

	return app.Listen(":" + strconv.Itoa(port))
}
