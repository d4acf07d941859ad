package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/walletflow/walletflow/internal/audit"
	"github.com/walletflow/walletflow/internal/breaker"
	"github.com/walletflow/walletflow/internal/config"
	"github.com/walletflow/walletflow/internal/identity"
	"github.com/walletflow/walletflow/internal/ledger"
	"github.com/walletflow/walletflow/internal/middleware"
	"github.com/walletflow/walletflow/internal/payments"
	"github.com/walletflow/walletflow/internal/reconcile"
	"github.com/walletflow/walletflow/internal/saga"
	"github.com/walletflow/walletflow/internal/transfers"
	"github.com/walletflow/walletflow/internal/wallet"
	"github.com/walletflow/walletflow/internal/walletclient"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Audit overrides the transaction log client, e.g. with the AMQP publisher.
	// When nil an HTTP recorder is used if AUDIT_SERVICE_URL is set, else a logger.
	Audit audit.Recorder
}

func (d Deps) validate() error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if d.Cfg.IsDevelopment() {
		return nil
	}
	if d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	return nil
}

func (d Deps) breakerConfig() breaker.Config {
	return breaker.Config{
		ConsecutiveFailures: uint32(d.Cfg.BreakerFailures),
		OpenFor:             d.Cfg.BreakerOpenFor,
	}
}

// auditSink builds the best-effort recorder and reports the breaker guarding
// it, if any.
func (d Deps) auditSink() (*audit.BestEffortRecorder, *breaker.Breaker) {
	rec := d.Audit
	var br *breaker.Breaker
	if rec == nil {
		if d.Cfg.AuditServiceURL != "" {
			br = breaker.New("audit", d.breakerConfig(), d.Logger)
			rec = audit.NewHTTPRecorder(d.Cfg.AuditServiceURL, d.Cfg.AuditPath, d.Cfg.RequestTimeout, br)
		} else {
			rec = audit.NewLogRecorder(d.Logger)
		}
	}
	return audit.BestEffort(rec, d.Logger, d.Cfg.RequestTimeout), br
}

func common(app *fiber.App, d Deps) fiber.Router {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(d.Logger))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	return api.Group("",
		middleware.Authenticate(identity.NewVerifier(d.Cfg.JWTSecret)),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	)
}

// SetupWallet wires the wallet service: the ledger and its HTTP surface.
func SetupWallet(app *fiber.App, d Deps) error {
	if err := d.validate(); err != nil {
		return err
	}

	var ledgerBackend ledger.Ledger
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
	}
	sink, auditBreaker := d.auditSink()

	protected := common(app, d)
	RegisterHealthRoutes(app, d, healthReport{audit: sink, breakers: []*breaker.Breaker{auditBreaker}})
	walletHandler := wallet.NewHandler(wallet.NewService(ledgerBackend, sink, d.Logger))
	RegisterWalletRoutes(protected, walletHandler, middleware.RateLimit(d.Cache, "topup", d.Cfg.RateLimitPerMinute))
	return nil
}

// SetupPayment wires the payment service: the payment and transfer
// orchestrators against the remote wallet service. The returned job reports
// unresolved inconsistencies; the caller starts and stops it.
func SetupPayment(app *fiber.App, d Deps) (*reconcile.Job, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.Cfg.WalletServiceURL == "" {
		return nil, fmt.Errorf("WALLET_SERVICE_URL must be set")
	}

	walletBreaker := breaker.New("wallet", d.breakerConfig(), d.Logger)
	wallets := walletclient.NewClient(d.Cfg.WalletServiceURL, d.Cfg.RequestTimeout, walletBreaker)
	sink, auditBreaker := d.auditSink()

	var (
		paymentRepo payments.Repository
		store       reconcile.Store
	)
	if d.DB != nil {
		paymentRepo = payments.NewPostgresRepository(d.DB)
		store = reconcile.NewPostgresStore(d.DB)
	} else {
		paymentRepo = payments.NewMemoryRepository()
		store = reconcile.NewMemoryStore()
	}

	policy := saga.CompensationPolicy{
		Attempts:  d.Cfg.CompensationAttempts,
		BaseDelay: d.Cfg.CompensationBackoff,
		Timeout:   d.Cfg.CompensationTimeout,
	}
	paymentSvc := payments.NewService(wallets, paymentRepo, sink, d.Logger)
	transferSvc := transfers.NewService(wallets, sink, store, policy, d.Logger)

	job, err := reconcile.NewJob(store, d.Cfg.ReconcileSchedule, d.Logger)
	if err != nil {
		return nil, err
	}

	protected := common(app, d)
	RegisterHealthRoutes(app, d, healthReport{
		audit:    sink,
		breakers: []*breaker.Breaker{walletBreaker, auditBreaker},
	})
	limit := middleware.RateLimit(d.Cache, "movements", d.Cfg.RateLimitPerMinute)
	RegisterPaymentRoutes(protected, payments.NewHandler(paymentSvc), limit)
	RegisterTransferRoutes(protected, transfers.NewHandler(transferSvc), limit)
	RegisterReconcileRoutes(protected, reconcile.NewHandler(store, d.Cfg.OperatorOwnerIDs))
	return job, nil
}
