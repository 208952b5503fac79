package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"sptm.org/internal/auth"
	"sptm.org/internal/obs"
)

// ReadyProbe checks the backing stores a deployment actually uses. Nil
// members are skipped, so a single-binary in-memory setup is always ready.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Options tune the outer middleware chain.
type Options struct {
	// Version is reported by /healthz.
	Version string
	// EdgeBurst and EdgePerSecond shape the per-IP token bucket in front of
	// everything. Zero values fall back to defaults.
	EdgeBurst     int
	EdgePerSecond int
	// MaxBodyBytes caps request bodies. Zero falls back to 1 MiB.
	MaxBodyBytes int64
}

// API is the HTTP layer over the authorization engine.
type API struct {
	mux        *http.ServeMux
	engine     *auth.Engine
	readyProbe ReadyProbe
	opts       Options
}

func New(engine *auth.Engine, rp ReadyProbe, opts Options) *API {
	if opts.EdgeBurst <= 0 {
		opts.EdgeBurst = 20
	}
	if opts.EdgePerSecond <= 0 {
		opts.EdgePerSecond = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:        http.NewServeMux(),
		engine:     engine,
		readyProbe: rp,
		opts:       opts,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/auth/", a.handleAuth)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Mount attaches a resource handler behind the authentication, context,
// tenant, and permission checks. Business services register their routes
// here instead of wiring their own auth.
func (a *API) Mount(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RateLimit(h, a.opts.EdgeBurst, a.opts.EdgePerSecond)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "sptm-auth",
		"version": a.opts.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
