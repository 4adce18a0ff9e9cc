package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tendant/gymkeeper/internal/config"
	"github.com/tendant/gymkeeper/internal/http/features/access"
	"github.com/tendant/gymkeeper/internal/http/features/attendance"
	"github.com/tendant/gymkeeper/internal/http/features/credential"
	"github.com/tendant/gymkeeper/internal/http/features/membership"
	"github.com/tendant/gymkeeper/internal/http/features/occupancy"
	"github.com/tendant/gymkeeper/internal/http/middleware"
	"github.com/tendant/gymkeeper/internal/httputil"
	"github.com/tendant/gymkeeper/internal/metrics"
	gate "github.com/tendant/gymkeeper/pkg/access"
	"github.com/tendant/gymkeeper/pkg/auth"
	"github.com/tendant/gymkeeper/pkg/domain"
	"github.com/tendant/gymkeeper/pkg/ledger"
	occ "github.com/tendant/gymkeeper/pkg/occupancy"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger          *slog.Logger
	Identity        middleware.TokenValidator
	Signer          *auth.Signer
	Rotator         *auth.Rotator
	ManualCodes     *auth.ManualCodeService
	Gate            *gate.Gate
	Membership      *ledger.MembershipService
	Attendance      *ledger.AttendanceService
	Occupancy       *occ.Counter
	Metrics         *metrics.Metrics
	Health          Pinger
	Clock           domain.Clock
	Locations       []string
	CORSOrigins     []string
	MaxBodyBytes    int64
	RateLimitConfig config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig
	MetricsUser     string
	MetricsPassword string
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxBodyBytes))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health.Ping(ctx); err != nil {
				cfg.Logger.Warn("health check failed", "error", err)
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Metrics != nil {
		handler := cfg.Metrics.Handler()
		if cfg.MetricsUser != "" && cfg.MetricsPassword != "" {
			handler = chimw.BasicAuth("metrics", map[string]string{cfg.MetricsUser: cfg.MetricsPassword})(handler)
		}
		r.Method(http.MethodGet, "/metrics", handler)
	}

	// Create rate limiters for different endpoint types
	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	upgrader := httputil.NewUpgrader(cfg.CORSOrigins)

	var streams credential.StreamTracker
	if cfg.Metrics != nil {
		streams = cfg.Metrics
	}
	credentialHandler := credential.NewHandler(cfg.Logger, cfg.Signer, cfg.Rotator, cfg.ManualCodes, upgrader, streams)
	accessHandler := access.NewHandler(cfg.Logger, cfg.Gate, cfg.Locations)
	membershipHandler := membership.NewHandler(cfg.Logger, cfg.Membership)
	attendanceHandler := attendance.NewHandler(cfg.Logger, cfg.Gate, cfg.Attendance, cfg.Clock, cfg.Locations)
	occupancyHandler := occupancy.NewHandler(cfg.Logger, cfg.Occupancy, upgrader, cfg.Locations)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Identity))

		// Member views
		r.Group(func(r chi.Router) {
			r.Use(rateLimiters[middleware.LimitRead])
			credentialHandler.RegisterRoutes(r)
		})

		// Front desk
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleStaff, domain.RoleAdmin))
			accessHandler.RegisterRoutes(r, rateLimiters[middleware.LimitScan], rateLimiters[middleware.LimitManual])
		})

		membershipHandler.RegisterRoutes(r, rateLimiters[middleware.LimitLedger], rateLimiters[middleware.LimitRead])
		attendanceHandler.RegisterRoutes(r, rateLimiters[middleware.LimitLedger], rateLimiters[middleware.LimitRead])
		occupancyHandler.RegisterRoutes(r, rateLimiters[middleware.LimitRead])
	})

	return r
}
