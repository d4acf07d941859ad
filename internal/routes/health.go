package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/walletflow/walletflow/internal/audit"
	"github.com/walletflow/walletflow/internal/breaker"
)

type healthReport struct {
	audit    *audit.BestEffortRecorder
	breakers []*breaker.Breaker
}

// RegisterHealthRoutes adds liveness/readiness style endpoints. Open breakers
// and failed ledger entries are reported but do not fail the check; only the
// service's own stores do.
func RegisterHealthRoutes(app *fiber.App, d Deps, report healthReport) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		} else {
			dbStatus = "disabled"
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		} else {
			redisStatus = "disabled"
		}

		breakers := fiber.Map{}
		for _, br := range report.breakers {
			if br != nil {
				breakers[br.Name()] = br.State()
			}
		}

		status := http.StatusOK
		if (dbStatus != "ok" && dbStatus != "disabled") || (redisStatus != "ok" && redisStatus != "disabled") {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"service":                   d.Cfg.AppName,
			"status":                    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"breakers":                  breakers,
			"unrecorded_ledger_entries": report.audit.Failures(),
			"timestamp":                 time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
