package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/platinummonkey/threshold/pkg/contextkeys"
	"github.com/platinummonkey/threshold/pkg/observability"
	"github.com/platinummonkey/threshold/pkg/resume"
	"github.com/platinummonkey/threshold/pkg/session"
	"github.com/platinummonkey/threshold/pkg/signin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Messages shown on the login page
const (
	MsgInvalidUsernameOrPassword = "Invalid username or password."
	MsgUsernameRequired          = "Username is required."
	MsgPasswordRequired          = "Password is required."
	MsgNoMatchingExternalAccount = "No matching external account."
)

// Operation names used for spans, logs and metrics
const (
	OpBeginLogin             = "begin_login"
	OpSubmitLocalCredentials = "submit_local_credentials"
	OpBeginExternalLogin     = "begin_external_login"
	OpExternalCallback       = "external_callback"
	OpResumeFromRedirect     = "resume_from_redirect"
	OpLogoutPrompt           = "logout_prompt"
	OpLogoutSubmit           = "logout_submit"
	OpFinalizeSignIn         = "finalize_sign_in"
)

// ErrInvalidOptions is returned by New for an unusable policy
var ErrInvalidOptions = errors.New("invalid flow options")

// RequestContext is the per-request state an operation works on
type RequestContext struct {
	Request *http.Request
	SignIns signin.Store
	Slots   *session.Slots
}

// LoginForm is a submitted local login form
type LoginForm struct {
	Username   string
	Password   string
	RememberMe string
}

// Orchestrator runs the login state machine
type Orchestrator struct {
	opts      Options
	base      *url.URL
	users     authn.UserService
	filter    authn.ClaimsFilter
	providers ProviderLister
	guard     resume.Guard
	metrics   *observability.Metrics
	logger    *logrus.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newToken  func() string
}

// New creates an orchestrator. Without WithResumeGuard, consumed resume
// tokens are tracked in process memory.
func New(opts Options, users authn.UserService, options ...Option) (*Orchestrator, error) {
	if users == nil {
		return nil, fmt.Errorf("%w: user service is required", ErrInvalidOptions)
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || !base.IsAbs() || !strings.HasSuffix(opts.BaseURL, "/") {
		return nil, fmt.Errorf("%w: base url %q must be absolute and end with /", ErrInvalidOptions, opts.BaseURL)
	}
	if opts.RememberMeDuration <= 0 {
		opts.RememberMeDuration = DefaultRememberMeDuration
	}

	o := &Orchestrator{
		opts:     opts,
		base:     base,
		users:    users,
		now:      time.Now,
		newToken: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	for _, opt := range options {
		opt(o)
	}
	if o.guard == nil {
		o.guard = resume.NewMemoryGuard(resume.DefaultMemorySize, resume.DefaultTTL)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	if o.tracer == nil {
		o.tracer = observability.Tracer()
	}
	return o, nil
}

// Options returns the effective policy
func (o *Orchestrator) Options() Options {
	return o.opts
}

func (o *Orchestrator) run(ctx context.Context, op string, fn func(context.Context, *logrus.Entry) Result) Result {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "flow."+op)
	defer span.End()

	log := observability.WithTraceContext(ctx, observability.LoggerFrom(ctx, o.logger)).WithField("operation", op)
	if id := contextkeys.GetSignInID(ctx); id != "" {
		log = log.WithField("signin_id", id)
	}
	res := fn(ctx, log)

	span.SetAttributes(attribute.String("flow.result", res.Kind()))
	if res.Kind() == KindError {
		span.SetStatus(codes.Error, "flow error page")
	}
	o.metrics.ObserveFlow(ctx, op, res.Kind(), time.Since(start))
	return res
}

// BeginLogin shows the login page for a sign-in, or goes straight to the
// provider the relying party asked for.
func (o *Orchestrator) BeginLogin(ctx context.Context, rc *RequestContext, signinID string) Result {
	return o.run(ctx, OpBeginLogin, func(ctx context.Context, log *logrus.Entry) Result {
		msg, ok := o.resolve(log, rc, signinID)
		if !ok {
			return o.errorPage(ctx, "")
		}
		log = log.WithField("signin_id", signinID)

		if msg.IdP != "" {
			log.WithField("provider", msg.IdP).Info("Identity provider requested, redirecting")
			return Redirect{URL: o.externalURL(msg.IdP, signinID)}
		}

		log.Info("Rendering login page")
		return o.loginPage(rc, signinID, "", "", false)
	})
}

// SubmitLocalCredentials checks a submitted login form. A nil form means
// nothing was posted.
func (o *Orchestrator) SubmitLocalCredentials(ctx context.Context, rc *RequestContext, signinID string, form *LoginForm) Result {
	return o.run(ctx, OpSubmitLocalCredentials, func(ctx context.Context, log *logrus.Entry) Result {
		if !o.opts.EnableLocalLogin {
			log.Warn("Local login disabled")
			return StatusOnly{Code: http.StatusMethodNotAllowed}
		}

		msg, ok := o.resolve(log, rc, signinID)
		if !ok {
			return o.errorPage(ctx, "")
		}
		log = log.WithField("signin_id", signinID)

		if form == nil {
			log.Warn("No data submitted")
			return o.loginPage(rc, signinID, MsgInvalidUsernameOrPassword, "", false)
		}

		choice := NormalizeRememberMe(o.opts.AllowRememberMe, form.RememberMe)
		accepted := choice == RememberMeAccepted

		if errMsg := validateLoginForm(form); errMsg != "" {
			log.WithField("reason", errMsg).Warn("Login form validation failed")
			return o.loginPage(rc, signinID, errMsg, form.Username, accepted)
		}

		outcome, err := o.users.AuthenticateLocal(ctx, form.Username, form.Password, msg)
		if err != nil {
			o.metrics.RecordUserStoreError("authenticate_local")
			log.WithError(err).Error("User service failed")
			return o.errorPage(ctx, "")
		}

		switch {
		case outcome.IsError():
			log.WithField("reason", outcome.ErrorMessage).Warn("User service returned an error message")
			return o.loginPage(rc, signinID, outcome.ErrorMessage, form.Username, accepted)
		case !outcome.IsSuccess():
			log.Warn("User service indicated incorrect username or password")
			return o.loginPage(rc, signinID, MsgInvalidUsernameOrPassword, form.Username, accepted)
		}

		log.WithField("subject", outcome.Identity.Subject()).Info("Local login succeeded")
		return o.finalize(ctx, log, rc, msg, outcome, choice)
	})
}

func validateLoginForm(form *LoginForm) string {
	if form.Username == "" {
		return MsgUsernameRequired
	}
	if form.Password == "" {
		return MsgPasswordRequired
	}
	return ""
}

// BeginExternalLogin starts a handshake with provider and sends the browser
// there. The sign-in id travels with the handshake as opaque state.
func (o *Orchestrator) BeginExternalLogin(ctx context.Context, rc *RequestContext, signinID, provider string) Result {
	return o.run(ctx, OpBeginExternalLogin, func(ctx context.Context, log *logrus.Entry) Result {
		if provider == "" {
			log.Warn("No provider passed")
			return o.errorPage(ctx, "")
		}
		log = log.WithField("provider", provider)

		if _, ok := o.resolve(log, rc, signinID); !ok {
			return o.errorPage(ctx, "")
		}
		log = log.WithField("signin_id", signinID)

		target, err := rc.Slots.External.Challenge(ctx, provider, signinID)
		if err != nil {
			log.WithError(err).Error("Failed to start external login")
			return o.errorPage(ctx, "")
		}

		log.Info("Redirecting to external provider")
		return Redirect{URL: target}
	})
}

// ExternalCallback finishes a provider handshake
func (o *Orchestrator) ExternalCallback(ctx context.Context, rc *RequestContext) Result {
	return o.run(ctx, OpExternalCallback, func(ctx context.Context, log *logrus.Entry) Result {
		id, signinID, ok := rc.Slots.External.Result()
		if !ok || signinID == "" {
			log.Warn("No signin id found in external handshake")
			return o.errorPage(ctx, "")
		}

		msg, ok := o.resolve(log, rc, signinID)
		if !ok {
			return o.errorPage(ctx, "")
		}
		log = log.WithField("signin_id", signinID)

		if id == nil {
			log.Warn("No identity from external provider")
			return o.loginPage(rc, signinID, MsgNoMatchingExternalAccount, "", false)
		}

		ext := authn.MapExternalIdentity(id.Claims, o.filter)
		if ext == nil {
			log.Warn("External identity has no usable provider or user id")
			return o.loginPage(rc, signinID, MsgNoMatchingExternalAccount, "", false)
		}

		return o.authenticateExternal(ctx, log, rc, msg, ext)
	})
}

func (o *Orchestrator) authenticateExternal(ctx context.Context, log *logrus.Entry, rc *RequestContext, msg *authn.SignInMessage, ext *authn.ExternalIdentity) Result {
	log = log.WithField("provider", ext.Provider)

	outcome, err := o.users.AuthenticateExternal(ctx, ext)
	if err != nil {
		o.metrics.RecordUserStoreError("authenticate_external")
		log.WithError(err).Error("User service failed")
		return o.errorPage(ctx, "")
	}

	switch {
	case outcome.IsError():
		log.WithField("reason", outcome.ErrorMessage).Warn("User service returned an error message")
		return o.loginPage(rc, msg.ID, outcome.ErrorMessage, "", false)
	case !outcome.IsSuccess():
		log.Warn("User service returned no matching external account")
		return o.loginPage(rc, msg.ID, MsgNoMatchingExternalAccount, "", false)
	}

	log.WithField("subject", outcome.Identity.Subject()).Info("External login succeeded")
	return o.finalize(ctx, log, rc, msg, outcome, RememberMeNotOffered)
}

// ResumeFromRedirect continues a partial sign-in once the out-of-band step
// has sent the browser back with its resume token.
func (o *Orchestrator) ResumeFromRedirect(ctx context.Context, rc *RequestContext, token string) Result {
	return o.run(ctx, OpResumeFromRedirect, func(ctx context.Context, log *logrus.Entry) Result {
		if token == "" {
			log.Warn("No resume token passed")
			return o.errorPage(ctx, "")
		}

		partial, ok := rc.Slots.Partial.Authenticate()
		if !ok {
			log.Warn("No partial login found")
			return o.errorPage(ctx, "")
		}
		pending := partial.Resume
		if pending == nil || subtle.ConstantTimeCompare([]byte(pending.Token), []byte(token)) != 1 {
			o.metrics.RecordResume(ctx, "mismatch")
			log.Warn("Resume token does not match partial login")
			return o.errorPage(ctx, "")
		}

		msg, ok := o.resolve(log, rc, pending.SignInID)
		if !ok {
			return o.errorPage(ctx, "")
		}
		log = log.WithField("signin_id", msg.ID)

		fresh, err := o.guard.Consume(ctx, token)
		if err != nil {
			o.metrics.RecordResume(ctx, "error")
			log.WithError(err).Error("Failed to record resume token")
			return o.errorPage(ctx, "")
		}
		if !fresh {
			o.metrics.RecordResume(ctx, "replayed")
			log.Warn("Resume token already used")
			return o.errorPage(ctx, "")
		}
		o.metrics.RecordResume(ctx, "consumed")

		user := partial.WithoutResume()
		if provider, providerID, linked := user.ExternalLinkage(); linked {
			log.WithField("provider", provider).Info("Resuming external login")
			return o.authenticateExternal(ctx, log, rc, msg, &authn.ExternalIdentity{
				Provider:   provider,
				ProviderID: providerID,
				Claims:     user.Claims,
			})
		}

		log.WithField("subject", user.Subject()).Info("Resuming login")
		return o.finalize(ctx, log, rc, msg, authn.Success(user), RememberMeNotOffered)
	})
}

// LogoutPrompt asks the user to confirm signing out
func (o *Orchestrator) LogoutPrompt(ctx context.Context, rc *RequestContext) Result {
	return o.run(ctx, OpLogoutPrompt, func(ctx context.Context, log *logrus.Entry) Result {
		model := LogoutViewModel{Site: o.site(), LogoutURL: o.opts.BaseURL + PathLogout}
		if id, ok := rc.Slots.Primary.Authenticate(); ok {
			model.CurrentUser = id.Name()
			log.WithField("subject", id.Subject()).Info("Logout prompt")
		} else {
			log.Info("Logout prompt for anonymous user")
		}
		return LogoutPromptPage{Model: model}
	})
}

// LogoutSubmit signs the browser out of every slot and forgets every
// in-flight sign-in.
func (o *Orchestrator) LogoutSubmit(ctx context.Context, rc *RequestContext) Result {
	return o.run(ctx, OpLogoutSubmit, func(ctx context.Context, log *logrus.Entry) Result {
		if id, ok := rc.Slots.Primary.Authenticate(); ok {
			log = log.WithField("subject", id.Subject())
		}
		rc.Slots.SignOutAll()
		rc.SignIns.ClearAll()
		log.Info("Logged out")

		return LoggedOutPage{Model: LoggedOutViewModel{
			Site:       o.site(),
			IFrameURLs: o.logoutFrames(),
		}}
	})
}

// FinalizeSignIn writes a successful outcome into the session and redirects.
// A partial outcome lands in the partial slot with a resume descriptor and
// keeps msg. A final one lands in the primary slot and removes msg.
func (o *Orchestrator) FinalizeSignIn(ctx context.Context, rc *RequestContext, msg *authn.SignInMessage, outcome *authn.Outcome, choice RememberMe) Result {
	return o.run(ctx, OpFinalizeSignIn, func(ctx context.Context, log *logrus.Entry) Result {
		if msg == nil {
			log.Warn("No signin message")
			return o.errorPage(ctx, "")
		}
		return o.finalize(ctx, log.WithField("signin_id", msg.ID), rc, msg, outcome, choice)
	})
}

func (o *Orchestrator) finalize(ctx context.Context, log *logrus.Entry, rc *RequestContext, msg *authn.SignInMessage, outcome *authn.Outcome, choice RememberMe) Result {
	if !outcome.IsSuccess() {
		log.Error("Cannot sign in without a successful outcome")
		return o.errorPage(ctx, "")
	}

	if outcome.Partial {
		target, err := o.partialRedirect(rc.Request, outcome.PartialRedirectPath)
		if err != nil {
			log.WithError(err).Error("Invalid partial login redirect")
			return o.errorPage(ctx, "")
		}

		id := outcome.Identity.WithoutResume()
		token := o.newToken()
		id.Resume = &authn.ResumePending{
			Token:     token,
			SignInID:  msg.ID,
			ReturnURL: o.opts.BaseURL + PathResume + "?resume=" + url.QueryEscape(token),
		}

		if err := rc.Slots.Partial.SignIn(id, session.Persistence{}); err != nil {
			log.WithError(err).Error("Failed to issue partial login cookie")
			return o.errorPage(ctx, "")
		}
		rc.Slots.Primary.SignOut()
		rc.Slots.External.SignOut()
		o.metrics.RecordSignIn(ctx, "partial")
		log.WithField("redirect", target).Info("Partial login issued")
		return Redirect{URL: target}
	}

	// the primary ticket replaces any earlier one, and nothing else is
	// cleared until it has been written
	persistence := o.opts.Persistence(choice, o.now())
	if err := rc.Slots.Primary.SignIn(outcome.Identity.WithoutResume(), persistence); err != nil {
		log.WithError(err).Error("Failed to issue login cookie")
		return o.errorPage(ctx, "")
	}
	rc.Slots.External.SignOut()
	rc.Slots.Partial.SignOut()
	rc.SignIns.Clear(msg.ID)
	o.metrics.RecordSignIn(ctx, "final")
	log.WithFields(logrus.Fields{
		"redirect":    msg.ReturnURL,
		"persistent":  persistence.Persistent,
		"remember_me": choice.String(),
	}).Info("Login complete")
	return Redirect{URL: msg.ReturnURL}
}

func (o *Orchestrator) resolve(log *logrus.Entry, rc *RequestContext, signinID string) (*authn.SignInMessage, bool) {
	if signinID == "" {
		log.Warn("No signin id passed")
		return nil, false
	}
	msg, ok := rc.SignIns.Read(signinID)
	if !ok {
		log.WithField("signin_id", signinID).Warn("No signin message found")
		return nil, false
	}
	return msg, true
}

func (o *Orchestrator) site() Site {
	return Site{SiteName: o.opts.SiteName, SiteURL: o.opts.BaseURL}
}

func (o *Orchestrator) errorPage(ctx context.Context, message string) Result {
	return ErrorPage{Model: ErrorViewModel{
		Site:         o.site(),
		ErrorMessage: message,
		RequestID:    contextkeys.GetRequestID(ctx),
	}}
}

func (o *Orchestrator) loginPage(rc *RequestContext, signinID, errMsg, username string, rememberMe bool) Result {
	model := LoginViewModel{
		Site:              o.site(),
		ExternalProviders: o.providerLinks(signinID),
		AdditionalLinks:   o.additionalLinks(signinID),
		ErrorMessage:      errMsg,
		Username:          username,
		AllowRememberMe:   o.opts.AllowRememberMe,
		RememberMe:        o.opts.AllowRememberMe && rememberMe,
		LogoutURL:         o.opts.BaseURL + PathLogout,
	}
	if id, ok := rc.Slots.Primary.Authenticate(); ok {
		model.CurrentUser = id.Name()
	}
	if o.opts.EnableLocalLogin {
		model.LoginURL = o.opts.BaseURL + PathLogin + "?signin=" + url.QueryEscape(signinID)
	}
	return LoginPage{Model: model}
}

func (o *Orchestrator) externalURL(provider, signinID string) string {
	return o.opts.BaseURL + PathExternal + "?provider=" + url.QueryEscape(provider) + "&signin=" + url.QueryEscape(signinID)
}

func (o *Orchestrator) providerLinks(signinID string) []Link {
	if o.providers == nil {
		return nil
	}
	var links []Link
	for _, p := range o.providers.Links() {
		if p.Caption == "" {
			continue
		}
		links = append(links, Link{Text: p.Caption, Href: o.externalURL(p.Name, signinID)})
	}
	return links
}

func (o *Orchestrator) additionalLinks(signinID string) []Link {
	if len(o.opts.LoginLinks) == 0 {
		return nil
	}
	links := make([]Link, 0, len(o.opts.LoginLinks))
	for _, l := range o.opts.LoginLinks {
		href := l.Href
		if strings.HasPrefix(href, "~/") {
			href = o.opts.BaseURL + strings.TrimPrefix(href, "~/")
		}
		sep := "?"
		if strings.Contains(href, "?") {
			sep = "&"
		}
		links = append(links, Link{Text: l.Text, Href: href + sep + "signin=" + url.QueryEscape(signinID)})
	}
	return links
}

func (o *Orchestrator) logoutFrames() []string {
	var frames []string
	for _, raw := range o.opts.ProtocolLogoutURLs {
		if u, err := url.Parse(raw); err == nil && u.IsAbs() {
			frames = append(frames, raw)
			continue
		}
		frames = append(frames, o.opts.BaseURL+strings.TrimPrefix(raw, "/"))
	}
	return frames
}

// partialRedirect makes path absolute. "~/" is the server base; anything
// else resolves against the current request.
func (o *Orchestrator) partialRedirect(r *http.Request, path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		path = o.opts.BaseURL + strings.TrimPrefix(path, "~/")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect %q: %w", path, err)
	}
	current := o.base
	if r != nil && r.URL != nil {
		current = o.base.ResolveReference(r.URL)
	}
	return current.ResolveReference(ref).String(), nil
}
