package flow

// Result kinds, also used as the "result" metric label
const (
	KindLoginPage    = "login_page"
	KindLogoutPrompt = "logout_prompt"
	KindLoggedOut    = "logged_out"
	KindError        = "error"
	KindRedirect     = "redirect"
	KindStatus       = "status"
)

// Result is what an orchestrator operation wants sent to the browser.
// The set of implementations is closed.
type Result interface {
	Kind() string
	isResult()
}

// LoginPage renders the login form
type LoginPage struct {
	Model LoginViewModel
}

// LogoutPromptPage renders the logout confirmation
type LogoutPromptPage struct {
	Model LogoutViewModel
}

// LoggedOutPage renders the signed-out page
type LoggedOutPage struct {
	Model LoggedOutViewModel
}

// ErrorPage renders the generic error page
type ErrorPage struct {
	Model ErrorViewModel
}

// Redirect sends the browser to URL with a 302
type Redirect struct {
	URL string
}

// StatusOnly is a bodyless protocol response
type StatusOnly struct {
	Code int
}

func (LoginPage) Kind() string        { return KindLoginPage }
func (LogoutPromptPage) Kind() string { return KindLogoutPrompt }
func (LoggedOutPage) Kind() string    { return KindLoggedOut }
func (ErrorPage) Kind() string        { return KindError }
func (Redirect) Kind() string         { return KindRedirect }
func (StatusOnly) Kind() string       { return KindStatus }

func (LoginPage) isResult()        {}
func (LogoutPromptPage) isResult() {}
func (LoggedOutPage) isResult()    {}
func (ErrorPage) isResult()        {}
func (Redirect) isResult()         {}
func (StatusOnly) isResult()       {}

// Site identifies the server on every page
type Site struct {
	SiteName string
	SiteURL  string
}

// Link is a text + href pair shown on the login page
type Link struct {
	Text string `yaml:"text"`
	Href string `yaml:"href"`
}

// LoginViewModel is everything the login form shows
type LoginViewModel struct {
	Site
	CurrentUser       string
	ExternalProviders []Link
	AdditionalLinks   []Link
	ErrorMessage      string
	Username          string
	AllowRememberMe   bool
	RememberMe        bool
	LoginURL          string // Empty when local login is disabled
	LogoutURL         string
}

// LogoutViewModel is the logout confirmation page
type LogoutViewModel struct {
	Site
	CurrentUser string
	LogoutURL   string
}

// LoggedOutViewModel lists the federated logout notification targets the
// page loads in hidden frames
type LoggedOutViewModel struct {
	Site
	IFrameURLs []string
}

// ErrorViewModel is the generic error page
type ErrorViewModel struct {
	Site
	ErrorMessage string
	RequestID    string
}
