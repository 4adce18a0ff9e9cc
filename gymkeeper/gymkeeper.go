// Package gymkeeper wires the access-control and membership-ledger core into
// one instance with an HTTP router and background jobs.
//
// Basic usage (in-memory store, for development and tests):
//
//	gk, err := gymkeeper.New(gymkeeper.Config{
//	    CredentialSecret: "a-secret-of-at-least-32-characters",
//	    JWTSecret:        "bridge-secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gk.Close()
//
//	gk.Start(ctx)
//	http.ListenAndServe(":8080", gk.Router())
//
// With Postgres:
//
//	gk, err := gymkeeper.New(gymkeeper.Config{
//	    CredentialSecret: secret,
//	    JWTSecret:        jwtSecret,
//	    Database: &repository.Config{
//	        Host: "localhost", Port: 5432, User: "postgres", DBName: "gymkeeper",
//	    },
//	})
package gymkeeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/gymkeeper/internal/config"
	"github.com/tendant/gymkeeper/internal/events"
	httpserver "github.com/tendant/gymkeeper/internal/http"
	"github.com/tendant/gymkeeper/internal/metrics"
	"github.com/tendant/gymkeeper/internal/scheduler"
	"github.com/tendant/gymkeeper/pkg/access"
	"github.com/tendant/gymkeeper/pkg/auth"
	"github.com/tendant/gymkeeper/pkg/domain"
	"github.com/tendant/gymkeeper/pkg/ledger"
	"github.com/tendant/gymkeeper/pkg/occupancy"
	"github.com/tendant/gymkeeper/pkg/repository"
)

// Config holds the configuration for a gymkeeper instance.
type Config struct {
	// CredentialSecret is the root secret for credential and manual-code keys (required, min 32 chars).
	CredentialSecret string

	// JWTSecret verifies identity bridge tokens (required).
	JWTSecret string

	// JWTIssuer is the expected issuer of bridge tokens (default: "gymkeeper").
	JWTIssuer string

	// RotationInterval is how long one displayed credential lives (default: 30s).
	RotationInterval time.Duration

	// CredentialTolerance is the accepted issue-time drift (default: 60s).
	CredentialTolerance time.Duration

	// ReplayGuard rejects a second scan of the same credential.
	ReplayGuard bool

	// ManualCodeAttempts per member per ManualCodeWindow (default: 5 per minute).
	ManualCodeAttempts int
	ManualCodeWindow   time.Duration

	// Location is the gym time zone (default: UTC).
	Location *time.Location

	// Locations lists the physical locations; the first is the default (default: ["main"]).
	Locations []string

	// DefaultCurrency applies to renewals without one (default: "MXN").
	DefaultCurrency string

	// StoreTimeout bounds every store operation (default: 5s).
	StoreTimeout time.Duration

	// Database selects Postgres. Nil uses the in-memory store.
	Database *repository.Config

	// OccupancyNotify relays occupancy changes written by other instances
	// through Postgres LISTEN/NOTIFY. Ignored without Database.
	OccupancyNotify bool

	// AMQPURL enables ledger event publishing (optional).
	AMQPURL      string
	AMQPExchange string

	// Schedules are the cron expressions of the maintenance jobs, read in
	// Location. Empty disables a job.
	Schedules scheduler.Schedules

	// HTTP settings.
	CORSOrigins     []string
	MaxBodyBytes    int64
	RateLimit       config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	MetricsUser     string
	MetricsPassword string

	// Registry receives the Prometheus collectors (default: a new registry).
	Registry *prometheus.Registry

	// Clock supplies time (default: the system clock).
	Clock domain.Clock

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger
}

// Store is every persistence port the services need.
type Store interface {
	ledger.RenewalStore
	ledger.AttendanceStore
	occupancy.Store
	Ping(ctx context.Context) error
}

// Gymkeeper is the main instance.
type Gymkeeper struct {
	config     Config
	db         *sql.DB
	store      Store
	publisher  publisher
	metrics    *metrics.Metrics
	signer     *auth.Signer
	verifier   *auth.Verifier
	rotator    *auth.Rotator
	manual     *auth.ManualCodeService
	identity   *auth.IdentityService
	membership *ledger.MembershipService
	attendance *ledger.AttendanceService
	counter    *occupancy.Counter
	gate       *access.Gate
	scheduler  *scheduler.Scheduler
	router     http.Handler

	mu       sync.Mutex
	cancel   context.CancelFunc
	listener *repository.OccupancyListener
	done     chan struct{}
}

type publisher interface {
	ledger.Publisher
	Close() error
}

// New creates a new instance with the given configuration.
func New(cfg Config) (*Gymkeeper, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	logger := cfg.Logger

	keys, err := auth.DeriveKeys(cfg.CredentialSecret)
	if err != nil {
		return nil, fmt.Errorf("gymkeeper: %w", err)
	}

	gk := &Gymkeeper{config: cfg}

	// Store
	if cfg.Database != nil {
		db, err := repository.NewDB(*cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("gymkeeper: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = repository.Migrate(ctx, db)
		cancel()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("gymkeeper: %w", err)
		}
		gk.db = db
		gk.store = newPostgresStore(db)
		logger.Info("using postgres store", "host", cfg.Database.Host, "db", cfg.Database.DBName)
	} else {
		gk.store = repository.NewMemoryStore()
		logger.Warn("using in-memory store, data is lost on restart")
	}

	// Events
	if cfg.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			gk.closeStore()
			return nil, fmt.Errorf("gymkeeper: %w", err)
		}
		gk.publisher = p
		logger.Info("event publishing enabled", "exchange", cfg.AMQPExchange)
	} else {
		gk.publisher = events.NopPublisher{}
	}

	gk.metrics = metrics.New(cfg.Registry)

	// Credentials
	gk.signer = auth.NewSigner(keys.Credential, cfg.Clock)
	var guard *auth.ReplayGuard
	if cfg.ReplayGuard {
		guard = auth.NewReplayGuard()
	}
	gk.verifier = auth.NewVerifier(auth.VerifierConfig{
		Key:       keys.Credential,
		Tolerance: cfg.CredentialTolerance,
		Guard:     guard,
	}, logger)
	gk.rotator = auth.NewRotator(gk.signer, auth.RotationConfig{Interval: cfg.RotationInterval}, logger)
	gk.manual = auth.NewManualCodeService(auth.ManualCodeConfig{
		Key:      keys.Manual,
		Period:   cfg.RotationInterval,
		Attempts: cfg.ManualCodeAttempts,
		Window:   cfg.ManualCodeWindow,
	}, cfg.Clock)
	gk.identity = auth.NewIdentityService(auth.IdentityConfig{
		JWTSecret: []byte(cfg.JWTSecret),
		Issuer:    cfg.JWTIssuer,
	})

	// Ledgers
	gk.membership = ledger.NewMembershipService(ledger.MembershipConfig{
		Location:        cfg.Location,
		DefaultCurrency: cfg.DefaultCurrency,
		StoreTimeout:    cfg.StoreTimeout,
	}, gk.store, gk.publisher, gk.metrics, cfg.Clock, logger)
	gk.attendance = ledger.NewAttendanceService(ledger.AttendanceConfig{
		Location:     cfg.Location,
		StoreTimeout: cfg.StoreTimeout,
	}, gk.store, gk.publisher, cfg.Clock, logger)

	// Occupancy
	gk.counter = occupancy.NewCounter(occupancy.Config{StoreTimeout: cfg.StoreTimeout}, gk.store, occupancy.NewHub(), gk.metrics, cfg.Clock, logger)

	gk.gate = access.NewGate(gk.verifier, gk.manual, gk.membership, gk.attendance, gk.counter, gk.metrics, cfg.Clock, logger)

	// Jobs
	jobs := scheduler.NewJobs(gk.attendance, gk.counter, gk.membership, limiterPruner{manual: gk.manual, guard: guard, clock: cfg.Clock}, cfg.Clock, logger, scheduler.Config{
		Locations: cfg.Locations,
	})
	gk.scheduler = scheduler.NewScheduler(jobs, logger, cfg.Schedules)

	gk.router = httpserver.NewRouter(httpserver.RouterConfig{
		Logger:          logger,
		Identity:        gk.identity,
		Signer:          gk.signer,
		Rotator:         gk.rotator,
		ManualCodes:     gk.manual,
		Gate:            gk.gate,
		Membership:      gk.membership,
		Attendance:      gk.attendance,
		Occupancy:       gk.counter,
		Metrics:         gk.metrics,
		Health:          gk.store,
		Clock:           cfg.Clock,
		Locations:       cfg.Locations,
		CORSOrigins:     cfg.CORSOrigins,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		RateLimitConfig: cfg.RateLimit,
		SecurityHeaders: cfg.SecurityHeaders,
		MetricsUser:     cfg.MetricsUser,
		MetricsPassword: cfg.MetricsPassword,
	})

	return gk, nil
}

// Start launches the scheduled jobs and, with Postgres, the occupancy relay.
// It returns immediately; Close stops everything.
func (g *Gymkeeper) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return errors.New("gymkeeper: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	g.scheduler.Start()

	if g.config.Database != nil && g.config.OccupancyNotify {
		listener, err := repository.NewOccupancyListener(*g.config.Database, g.config.Logger)
		if err != nil {
			cancel()
			g.scheduler.Stop()
			g.cancel = nil
			return fmt.Errorf("gymkeeper: %w", err)
		}
		g.listener = listener
		go func() {
			defer close(g.done)
			listener.Run(ctx, g.counter.Relay)
		}()
	} else {
		close(g.done)
	}
	return nil
}

// Router returns the HTTP handler with every route.
//
// Routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /v1/me/credential                       - current credential, QR and manual code
//	GET  /v1/me/credential/stream                - websocket, rotating credential
//	POST /v1/access/scan                         - staff
//	POST /v1/access/manual                       - staff
//	POST /v1/attendance                          - staff
//	POST /v1/members/{memberID}/renewals         - staff
//	GET  /v1/members/{memberID}/entitlement      - self or staff
//	GET  /v1/members/{memberID}/membership       - self or staff
//	GET  /v1/members/{memberID}/renewals         - self or staff
//	GET  /v1/members/{memberID}/attendance       - self or staff
//	GET  /v1/members/{memberID}/stats            - self or staff
//	GET  /v1/locations/{locationID}/occupancy
//	GET  /v1/locations/{locationID}/occupancy/stream
func (g *Gymkeeper) Router() http.Handler {
	return g.router
}

// Gate returns the scan flow for embedding in other transports.
func (g *Gymkeeper) Gate() *access.Gate {
	return g.gate
}

// Membership returns the membership ledger.
func (g *Gymkeeper) Membership() *ledger.MembershipService {
	return g.membership
}

// Attendance returns the attendance ledger.
func (g *Gymkeeper) Attendance() *ledger.AttendanceService {
	return g.attendance
}

// Occupancy returns the occupancy counter.
func (g *Gymkeeper) Occupancy() *occupancy.Counter {
	return g.counter
}

// Signer returns the credential signer.
func (g *Gymkeeper) Signer() *auth.Signer {
	return g.signer
}

// Identity returns the identity bridge validator.
func (g *Gymkeeper) Identity() *auth.IdentityService {
	return g.identity
}

// Close stops background work and releases connections.
func (g *Gymkeeper) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	if g.cancel != nil {
		g.cancel()
		<-g.scheduler.Stop().Done()
		<-g.done
		g.cancel = nil
	}
	if g.listener != nil {
		errs = append(errs, g.listener.Close())
		g.listener = nil
	}
	if g.publisher != nil {
		errs = append(errs, g.publisher.Close())
	}
	errs = append(errs, g.closeStore())
	return errors.Join(errs...)
}

func (g *Gymkeeper) closeStore() error {
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}

// postgresStore combines the table repositories into one Store.
type postgresStore struct {
	*repository.MembersRepository
	*repository.AttendanceRepository
	*repository.OccupancyRepository
	*repository.Pinger
}

func newPostgresStore(db *sql.DB) *postgresStore {
	return &postgresStore{
		MembersRepository:    repository.NewMembersRepository(db),
		AttendanceRepository: repository.NewAttendanceRepository(db),
		OccupancyRepository:  repository.NewOccupancyRepository(db),
		Pinger:               repository.NewPinger(db),
	}
}

// limiterPruner drops idle manual-code limiters and expired replay entries.
type limiterPruner struct {
	manual *auth.ManualCodeService
	guard  *auth.ReplayGuard
	clock  domain.Clock
}

func (p limiterPruner) Prune(olderThan time.Duration) int {
	n := p.manual.Prune(olderThan)
	if p.guard != nil {
		n += p.guard.Prune(p.clock.Now())
	}
	return n
}

func validateConfig(cfg *Config) error {
	if cfg.CredentialSecret == "" {
		return errors.New("gymkeeper: CredentialSecret is required")
	}
	if len(cfg.CredentialSecret) < auth.MinSecretLength {
		return fmt.Errorf("gymkeeper: CredentialSecret must be at least %d characters", auth.MinSecretLength)
	}
	if cfg.JWTSecret == "" {
		return errors.New("gymkeeper: JWTSecret is required")
	}
	if cfg.RotationInterval < 0 || cfg.CredentialTolerance < 0 {
		return errors.New("gymkeeper: durations must not be negative")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "gymkeeper"
	}
	if cfg.RotationInterval == 0 {
		cfg.RotationInterval = auth.DefaultRotationInterval
	}
	if cfg.CredentialTolerance == 0 {
		cfg.CredentialTolerance = auth.DefaultTolerance
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.Locations) == 0 {
		cfg.Locations = []string{"main"}
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = domain.DefaultCurrency
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = ledger.DefaultStoreTimeout
	}
	if cfg.Schedules.Location == nil {
		cfg.Schedules.Location = cfg.Location
	}
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = events.DefaultExchange
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.Clock == nil {
		cfg.Clock = domain.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}
