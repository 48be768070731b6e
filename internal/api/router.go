package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soaringjerry/Pollen/internal/identity"
	"github.com/soaringjerry/Pollen/internal/middleware"
	"github.com/soaringjerry/Pollen/internal/services"
	"github.com/soaringjerry/Pollen/internal/utils"
)

type Deps struct {
	Accounts *services.AccountService
	Builder  *services.BuilderService
	Viewer   *services.ViewerService
	Summary  *services.SummaryService
	Tokens   *identity.Tokens
	// Limiter throttles respondent writes; nil disables it.
	Limiter *middleware.RateLimiter
	// SessionIdle is how long an unused builder session stays open.
	SessionIdle time.Duration
	Version     string
}

type Router struct {
	deps     Deps
	sessions *sessionRegistry
	now      func() time.Time
}

func NewRouter(deps Deps) *Router {
	return &Router{
		deps:     deps,
		sessions: newSessionRegistry(deps.Builder, deps.SessionIdle),
		now:      time.Now,
	}
}

// Run closes idle builder sessions until ctx is cancelled, flushing the rest
// on the way out.
func (rt *Router) Run(ctx context.Context) { rt.sessions.run(ctx) }

func (rt *Router) Register(mux *http.ServeMux) {
	auth := middleware.RequireAuth
	limit := func(h http.Handler) http.Handler { return h }
	if rt.deps.Limiter != nil {
		limit = rt.deps.Limiter.Limit
	}

	mux.HandleFunc("GET /health", rt.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/auth/anonymous", limit(http.HandlerFunc(rt.handleAnonymous)))
	mux.Handle("POST /api/auth/register", limit(http.HandlerFunc(rt.handleRegister)))
	mux.Handle("POST /api/auth/login", limit(http.HandlerFunc(rt.handleLogin)))

	mux.Handle("GET /api/forms", auth(http.HandlerFunc(rt.handleListForms)))
	mux.Handle("POST /api/forms", auth(http.HandlerFunc(rt.handleCreateForm)))
	mux.Handle("GET /api/forms/{formId}", auth(http.HandlerFunc(rt.handleGetForm)))
	mux.Handle("POST /api/forms/{formId}/edits", auth(http.HandlerFunc(rt.handleEdits)))
	mux.Handle("GET /api/forms/{formId}/share", auth(http.HandlerFunc(rt.handleShare)))
	mux.Handle("GET /api/forms/{formId}/summary", auth(http.HandlerFunc(rt.handleSummary)))
	mux.Handle("GET /api/forms/{formId}/export", auth(http.HandlerFunc(rt.handleExport)))

	// Respondent routes address the form through share link query params.
	mux.HandleFunc("GET /api/respond", rt.handleRespondView)
	mux.Handle("POST /api/respond/ratings", auth(limit(http.HandlerFunc(rt.handleRate))))
	mux.Handle("POST /api/respond/options", auth(limit(http.HandlerFunc(rt.handleCrowdOption))))
	mux.Handle("POST /api/respond/comments", auth(limit(http.HandlerFunc(rt.handleComment))))
	mux.Handle("POST /api/respond/submit", auth(limit(http.HandlerFunc(rt.handleSubmit))))
}

// Handler returns the full middleware chain around a fresh mux.
func (rt *Router) Handler(allowOrigins []string) http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	var h http.Handler = mux
	h = middleware.WithAuth(rt.deps.Tokens)(h)
	h = middleware.LocaleMiddleware(h)
	h = middleware.NoStore(h)
	h = middleware.SecureHeaders(h)
	h = middleware.CORS(allowOrigins)(h)
	return middleware.WithLogging(h)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"name":    "Pollen API",
		"locale":  locale,
		"msg":     utils.T(locale, "health.ok"),
		"version": rt.deps.Version,
	})
}

func (rt *Router) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	res, err := rt.deps.Accounts.SignInAnonymously(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := rt.deps.Accounts.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := rt.deps.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func caller(r *http.Request) identity.Identity {
	id, _ := identity.FromContext(r.Context())
	return id
}
