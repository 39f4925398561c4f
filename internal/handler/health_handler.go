package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const probeTimeout = 2 * time.Second

// SchedulerStatus reports whether the poll loop is active. Satisfied by
// *service.Scheduler.
type SchedulerStatus interface {
	IsRunning() bool
}

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, scheduler SchedulerStatus) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, scheduler))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// ReadyzHandler gates readiness on both stores. The scheduler flag is
// informational: a stopped poller is an operator choice, not an outage.
func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, scheduler SchedulerStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), probeTimeout)
		defer cancel()

		checks := fiber.Map{
			"postgres": probeStatus(sqlDB.PingContext(ctx)),
			"redis":    probeStatus(rdb.Ping(ctx).Err()),
		}

		status := "ready"
		statusCode := fiber.StatusOK
		for _, v := range checks {
			if v != "ok" {
				status = "not_ready"
				statusCode = fiber.StatusServiceUnavailable
			}
		}

		if scheduler != nil {
			checks["scheduler"] = schedulerStatusLabel(scheduler.IsRunning())
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func probeStatus(err error) string {
	if err != nil {
		return "down"
	}
	return "ok"
}

func schedulerStatusLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}
