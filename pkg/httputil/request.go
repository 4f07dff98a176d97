package httputil

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/gorilla/mux"
)

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// ParseLoginForm parses an urlencoded POST body. Other content types are
// rejected so credentials are never read from the query string.
func ParseLoginForm(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		return fmt.Errorf("unsupported content type %q", r.Header.Get("Content-Type"))
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("invalid form: %w", err)
	}
	return nil
}

// PostFormValue returns the named body field, or "" when absent
func PostFormValue(r *http.Request, key string) string {
	if r.PostForm == nil {
		return ""
	}
	return r.PostForm.Get(key)
}
