// Package server exposes the login flow over HTTP.
package server

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/platinummonkey/threshold/pkg/contextkeys"
	"github.com/platinummonkey/threshold/pkg/cookie"
	"github.com/platinummonkey/threshold/pkg/flow"
	"github.com/platinummonkey/threshold/pkg/httputil"
	"github.com/platinummonkey/threshold/pkg/observability"
	"github.com/platinummonkey/threshold/pkg/session"
	"github.com/platinummonkey/threshold/pkg/signin"
	"github.com/platinummonkey/threshold/pkg/views"
)

// MaxFormBytes bounds a login form body
const MaxFormBytes = 64 << 10

// PathInitiate starts a sign-in for a relying party return URL. It is only
// mounted when Config.ReturnURLs is set.
const PathInitiate = "signin"

// RouteRegistrar mounts extra routes under the server base path
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Config wires the server's collaborators
type Config struct {
	Orchestrator   *flow.Orchestrator
	Sessions       *session.Manager
	Codec          *cookie.Codec
	Cookies        cookie.Options
	SignInLifetime time.Duration
	Renderer       views.Renderer
	Metrics        *observability.Metrics
	Logger         *logrus.Logger
	// ReturnURLs gates the initiation endpoint; nil leaves it unmounted
	ReturnURLs signin.ReturnURLPolicy
	// Extra route groups, such as the provider callbacks.
	//
	// App-relative ("~/") second-factor and registration paths are only
	// served when a registrar mounts them here. Such a handler reads the
	// partial slot from Sessions, finishes its step, and redirects the
	// browser to the slot's ResumePending.ReturnURL. Paths on another host
	// need no registrar.
	Extra []RouteRegistrar
}

// Server serves the login endpoints
type Server struct {
	orch     *flow.Orchestrator
	sessions *session.Manager
	codec    *cookie.Codec
	cookies  cookie.Options
	signins  []signin.StoreOption
	policy   signin.ReturnURLPolicy
	renderer views.Renderer
	logger   *logrus.Logger
	router   *mux.Router
	handler  http.Handler
}

// New creates the server and its routes. Routes live under the path of the
// orchestrator's base URL.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = views.NewTemplateRenderer()
	}

	s := &Server{
		orch:     cfg.Orchestrator,
		sessions: cfg.Sessions,
		codec:    cfg.Codec,
		cookies:  cfg.Cookies,
		signins:  []signin.StoreOption{signin.WithLifetime(cfg.SignInLifetime)},
		policy:   cfg.ReturnURLs,
		renderer: cfg.Renderer,
		logger:   cfg.Logger,
		router:   mux.NewRouter(),
	}

	routes := s.router
	if prefix := basePath(cfg.Orchestrator.Options().BaseURL); prefix != "" {
		routes = s.router.PathPrefix(prefix).Subrouter()
	}
	if cfg.Metrics != nil {
		routes.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	s.setupRoutes(routes)
	for _, extra := range cfg.Extra {
		extra.RegisterRoutes(routes)
	}

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.SecurityHeadersMiddleware,
		httputil.MaxBytesMiddleware(MaxFormBytes),
	)(s.router)
	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router exposes the route table
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/"+flow.PathLogin, s.handle(s.beginLogin)).Methods("GET")
	r.HandleFunc("/"+flow.PathLogin, s.handle(s.submitLogin)).Methods("POST")
	r.HandleFunc("/"+flow.PathExternal, s.handle(s.beginExternal)).Methods("GET")
	r.HandleFunc("/"+flow.PathCallback, s.handle(s.externalCallback)).Methods("GET")
	r.HandleFunc("/"+flow.PathResume, s.handle(s.resume)).Methods("GET")
	r.HandleFunc("/"+flow.PathLogout, s.handle(s.logoutPrompt)).Methods("GET")
	r.HandleFunc("/"+flow.PathLogout, s.handle(s.logoutSubmit)).Methods("POST")
	if s.policy != nil {
		r.HandleFunc("/"+PathInitiate, s.initiate).Methods("GET")
	}
}

// initiate handles GET /signin?returnUrl=...&idp=... by storing a
// correlation message and sending the browser to the login page.
func (s *Server) initiate(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFrom(r.Context(), s.logger)
	store := signin.NewCookieStore(cookie.NewJar(w, r, s.cookies), s.codec, s.signins...)

	id, err := signin.Issue(store, s.policy, &authn.SignInMessage{
		IdP:       httputil.ParseQueryString(r, "idp", ""),
		ReturnURL: httputil.ParseQueryString(r, "returnUrl", ""),
	})
	if err != nil {
		log.WithError(err).Warn("Refusing to start sign-in")
		httputil.NoStore(w)
		httputil.WriteStatus(w, http.StatusBadRequest)
		return
	}

	log.WithField("signin_id", id).Info("Sign-in started")
	httputil.NoStore(w)
	httputil.Redirect(w, r, s.orch.Options().BaseURL+flow.PathLogin+"?signin="+url.QueryEscape(id))
}

type operation func(ctx context.Context, rc *flow.RequestContext, r *http.Request) flow.Result

// handle builds the request's cookie jar, runs op and writes its result.
// The correlation store and the session slots share the jar so their cookie
// writes land in one response.
func (s *Server) handle(op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jar := cookie.NewJar(w, r, s.cookies)
		rc := &flow.RequestContext{
			Request: r,
			SignIns: signin.NewCookieStore(jar, s.codec, s.signins...),
			Slots:   s.sessions.ForRequest(jar),
		}
		s.write(w, r, op(r.Context(), rc, r))
	}
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, res flow.Result) {
	httputil.NoStore(w)

	switch res := res.(type) {
	case flow.Redirect:
		httputil.Redirect(w, r, res.URL)
	case flow.StatusOnly:
		httputil.WriteStatus(w, res.Code)
	default:
		var buf bytes.Buffer
		if err := s.renderer.Render(&buf, res); err != nil {
			observability.LoggerFrom(r.Context(), s.logger).WithError(err).Error("Failed to render page")
			httputil.WriteStatus(w, http.StatusInternalServerError)
			return
		}
		if err := httputil.WriteHTML(w, http.StatusOK, buf.Bytes()); err != nil {
			observability.LoggerFrom(r.Context(), s.logger).WithError(err).Debug("Failed to write page")
		}
	}
}

func (s *Server) beginLogin(ctx context.Context, rc *flow.RequestContext, r *http.Request) flow.Result {
	id := httputil.ParseQueryString(r, "signin", "")
	return s.orch.BeginLogin(contextkeys.WithSignInID(ctx, id), rc, id)
}

// submitLogin handles POST /login. A body that is not a urlencoded form, or
// carries no fields, counts as no data.
func (s *Server) submitLogin(ctx context.Context, rc *flow.RequestContext, r *http.Request) flow.Result {
	id := httputil.ParseQueryString(r, "signin", "")

	var form *flow.LoginForm
	if err := httputil.ParseLoginForm(r); err != nil {
		observability.LoggerFrom(ctx, s.logger).WithError(err).Debug("Ignoring login body")
	} else if len(r.PostForm) > 0 {
		form = &flow.LoginForm{
			Username:   httputil.PostFormValue(r, "username"),
			Password:   httputil.PostFormValue(r, "password"),
			RememberMe: httputil.PostFormValue(r, "rememberMe"),
		}
	}
	return s.orch.SubmitLocalCredentials(contextkeys.WithSignInID(ctx, id), rc, id, form)
}

func (s *Server) beginExternal(ctx context.Context, rc *flow.RequestContext, r *http.Request) flow.Result {
	id := httputil.ParseQueryString(r, "signin", "")
	provider := httputil.ParseQueryString(r, "provider", "")
	return s.orch.BeginExternalLogin(contextkeys.WithSignInID(ctx, id), rc, id, provider)
}

func (s *Server) externalCallback(ctx context.Context, rc *flow.RequestContext, _ *http.Request) flow.Result {
	return s.orch.ExternalCallback(ctx, rc)
}

func (s *Server) resume(ctx context.Context, rc *flow.RequestContext, r *http.Request) flow.Result {
	return s.orch.ResumeFromRedirect(ctx, rc, httputil.ParseQueryString(r, "resume", ""))
}

func (s *Server) logoutPrompt(ctx context.Context, rc *flow.RequestContext, _ *http.Request) flow.Result {
	return s.orch.LogoutPrompt(ctx, rc)
}

func (s *Server) logoutSubmit(ctx context.Context, rc *flow.RequestContext, _ *http.Request) flow.Result {
	return s.orch.LogoutSubmit(ctx, rc)
}

// basePath returns the path of baseURL without its trailing slash, or ""
// when the server is mounted at the root.
func basePath(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Path, "/")
}
