/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     zap request log (method, path, status, duration)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontends
  6. Actor:      X-Actor / X-Role headers into the request context

ROUTE GROUPS:
  /api/templates/*      Depreciation templates
  /api/assets/*         Assets, schedules, activities, adjustments
  /api/repairs/*        Repair workflow
  /api/schedules/*      Schedules and manual posting
  /api/depreciation/*   Sweeps and posting settings
  /api/postings/*       Posting lookup and cancellation
  /api/companies/*,
  /api/categories/*,
  /api/accounts/*       Settings read by the accounts resolver
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus
  /healthz              Liveness

SECURITY NOTE:
  The actor headers are trusted as sent. Put the service behind an
  authenticating proxy that sets them.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/asset-engine/depreciation"
)

const (
	HeaderActor = "X-Actor"
	HeaderRole  = "X-Role"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", HeaderActor, HeaderRole},
		MaxAge:         300,
	}))
	r.Use(actorFromHeaders)

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{name}", h.GetTemplate)
		})

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", h.ListAssets)
			r.Post("/", h.CreateAsset)
			r.Get("/{id}", h.GetAsset)
			r.Put("/{id}", h.UpdateAsset)
			r.Post("/{id}/submit", h.SubmitAsset)
			r.Post("/{id}/cancel", h.CancelAsset)
			r.Post("/{id}/scrap", h.ScrapAsset)
			r.Get("/{id}/schedules", h.ListAssetSchedules)
			r.Get("/{id}/activities", h.ListAssetActivities)
			r.Get("/{id}/repairs", h.ListRepairs)
			r.Post("/{id}/repairs", h.CreateRepair)
			r.Post("/{id}/revaluations", h.CreateRevaluation)
		})

		r.Route("/repairs", func(r chi.Router) {
			r.Post("/{id}/complete", h.CompleteRepair)
			r.Post("/{id}/submit", h.SubmitRepair)
			r.Post("/{id}/cancel", h.CancelRepair)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/{id}", h.GetSchedule)
			r.Post("/{id}/post", h.PostSchedule)
		})

		r.Route("/depreciation", func(r chi.Router) {
			r.Post("/run", h.RunDepreciation)
			r.Get("/runs", h.ListSweepRuns)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
		})

		r.Route("/postings", func(r chi.Router) {
			r.Get("/{id}", h.GetPosting)
			r.Delete("/{id}", h.CancelPosting)
		})

		// Settings routes
		r.Get("/companies/{name}", h.GetCompany)
		r.Put("/companies/{name}", h.SaveCompany)
		r.Get("/categories/{name}", h.GetCategory)
		r.Put("/categories/{name}", h.SaveCategory)
		r.Get("/accounts/{name}", h.GetAccount)
		r.Put("/accounts/{name}", h.SaveAccount)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// actorFromHeaders puts the caller named in X-Actor into the context. X-Role
// is a comma separated role list.
func actorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderActor))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		var roles []string
		for _, role := range strings.Split(r.Header.Get(HeaderRole), ",") {
			if role = strings.TrimSpace(role); role != "" && role != depreciation.RoleSystem {
				roles = append(roles, role)
			}
		}
		ctx := depreciation.WithActor(r.Context(), depreciation.Actor{ID: id, Roles: roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
