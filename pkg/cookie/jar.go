package cookie

import (
	"net/http"
	"strings"
	"time"
)

// Options defines how cookies are issued
type Options struct {
	Path     string
	Domain   string
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// normalize applies safe defaults without breaking callers
func (o Options) normalize() Options {
	if o.Path == "" {
		o.Path = "/"
	}
	if !o.HttpOnly {
		o.HttpOnly = true
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// Jar reads request cookies and writes response cookies for a single
// request. Writes are visible to later reads through the same jar, and a
// second write to the same name replaces the first Set-Cookie header.
type Jar struct {
	w       http.ResponseWriter
	r       *http.Request
	opts    Options
	pending map[string]*http.Cookie
}

// NewJar creates a jar for one request/response pair
func NewJar(w http.ResponseWriter, r *http.Request, opts Options) *Jar {
	return &Jar{w: w, r: r, opts: opts.normalize(), pending: make(map[string]*http.Cookie)}
}

// Get returns the current value of a cookie
func (j *Jar) Get(name string) (string, bool) {
	if c, ok := j.pending[name]; ok {
		if c.MaxAge < 0 {
			return "", false
		}
		return c.Value, true
	}
	c, err := j.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set writes a cookie. A zero expires makes it a browser-session cookie.
func (j *Jar) Set(name, value string, expires time.Time) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     j.opts.Path,
		Domain:   j.opts.Domain,
		Expires:  expires,
		HttpOnly: j.opts.HttpOnly,
		Secure:   j.opts.Secure,
		SameSite: j.opts.SameSite,
	}
	j.write(c)
}

// Delete expires a cookie
func (j *Jar) Delete(name string) {
	c := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     j.opts.Path,
		Domain:   j.opts.Domain,
		MaxAge:   -1,
		HttpOnly: j.opts.HttpOnly,
		Secure:   j.opts.Secure,
		SameSite: j.opts.SameSite,
	}
	j.write(c)
}

// Names lists the live cookie names starting with prefix, from both the
// request and earlier writes.
func (j *Jar) Names(prefix string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range j.r.Cookies() {
		if strings.HasPrefix(c.Name, prefix) && !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	}
	for name := range j.pending {
		if strings.HasPrefix(name, prefix) && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func (j *Jar) write(c *http.Cookie) {
	if _, ok := j.pending[c.Name]; ok {
		j.dropHeader(c.Name)
	}
	j.pending[c.Name] = c
	http.SetCookie(j.w, c)
}

func (j *Jar) dropHeader(name string) {
	h := j.w.Header()
	existing := h.Values("Set-Cookie")
	kept := existing[:0:0]
	for _, v := range existing {
		if !strings.HasPrefix(v, name+"=") {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
}
