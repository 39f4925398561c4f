package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stageline/webinar-mailer/internal/domain"
)

func TestMetricsDispatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncEmailSent(domain.SlotReminder1)
	metrics.IncEmailSent(domain.SlotReminder1)
	metrics.IncEmailFailed(domain.SlotReminder1)
	metrics.ObserveDispatchDuration(domain.SlotReminder1, 250*time.Millisecond)
	metrics.IncDispatchRun(domain.SlotReminder1, "Completed")
	metrics.IncDispatchRun(domain.SlotPostEvent, "")
	metrics.IncSchedulerTick()

	if got := testutil.ToFloat64(metrics.emailsSentTotal.WithLabelValues("1")); got != 2 {
		t.Fatalf("emails_sent_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.emailsFailedTotal.WithLabelValues("1")); got != 1 {
		t.Fatalf("emails_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.dispatchRunsTotal.WithLabelValues("1", "completed")); got != 1 {
		t.Fatalf("dispatch_runs_total = %v, want 1 (result label lowercased)", got)
	}
	if got := testutil.ToFloat64(metrics.dispatchRunsTotal.WithLabelValues("4", "unknown")); got != 1 {
		t.Fatalf("dispatch_runs_total = %v, want 1 for a blank result", got)
	}
	if got := testutil.ToFloat64(metrics.schedulerTicksTotal); got != 1 {
		t.Fatalf("scheduler_ticks_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.IncSchedulerTick()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "webinar_mailer_scheduler_ticks_total") {
		t.Fatal("exposition missing scheduler tick counter")
	}
}
