// Package httpapi is the HTTP layer: routing, identity resolution,
// permission checks and error mapping. Handlers stay thin; domain
// rules live in inventory and the stores.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"dolltrack/internal/auth"
	"dolltrack/internal/inventory"
	"dolltrack/internal/media"
	"dolltrack/internal/obs"
)

// ReadyProbe checks backing-store health for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API's collaborators.
type Options struct {
	Service  inventory.Service
	Media    *media.Store
	Resolver *auth.Resolver
	Probe    ReadyProbe
	Version  string
}

// API is the HTTP layer.
type API struct {
	router   chi.Router
	svc      inventory.Service
	media    *media.Store
	resolver *auth.Resolver
	probe    ReadyProbe
	validate *validator.Validate
	version  string
}

func New(opts Options) *API {
	a := &API{
		svc:      opts.Service,
		media:    opts.Media,
		resolver: opts.Resolver,
		probe:    opts.Probe,
		validate: validator.New(),
		version:  opts.Version,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogging)
	r.Use(instrument)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	r.Use(maxBodyBytes(10 << 20))
	r.Use(rateLimit(60, 30))

	// public surface
	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())
	r.Get("/media/*", a.serveMedia)

	// everything under /api carries a resolved identity
	r.Route("/api", func(r chi.Router) {
		r.Use(a.withIdentity)

		r.Get("/me", a.me)

		r.Route("/dolls", func(r chi.Router) {
			r.Get("/", a.listDolls)
			r.Post("/", a.createDoll)
			r.Get("/suggestions", a.suggestDolls)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getDoll)
				r.Patch("/", a.patchDoll)
				r.Delete("/", a.deleteDoll)
				r.Get("/events", a.listDollEvents)
				r.Get("/photos", a.listPhotos)
				r.Post("/photos", a.addPhoto)
			})
		})

		r.Get("/events", a.listEvents)

		r.Route("/containers", func(r chi.Router) {
			r.Get("/", a.listContainers)
			r.Post("/", a.createContainer)
			r.Patch("/{id}", a.renameContainer)
			r.Post("/{id}/reorder", a.reorderContainer)
			r.Delete("/{id}", a.deleteContainer)
		})

		r.Route("/photos", func(r chi.Router) {
			r.Post("/{id}/set-primary", a.setPrimaryPhoto)
		})
	})

	a.router = r
	return a
}

// Handler returns the root handler for the server.
func (a *API) Handler() http.Handler { return a.router }

// instrument labels metrics with the chi route pattern rather than the
// raw URL to keep cardinality bounded.
func instrument(next http.Handler) http.Handler {
	return obs.Instrument(next, func(r *http.Request) string {
		if rc := chi.RouteContext(r.Context()); rc != nil {
			return rc.RoutePattern()
		}
		return ""
	})
}

// --- ambient handlers ---

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "dolltrack",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           id.ID,
		"email":        id.Email,
		"display_name": id.DisplayName,
		"groups":       id.Groups,
		"permissions":  id.PermissionList(),
		"as_of":        time.Now().UTC(),
	})
}

func (a *API) serveMedia(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	abs, err := a.media.Resolve(rel)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "photo not found")
		return
	}
	http.ServeFile(w, r, abs)
}
