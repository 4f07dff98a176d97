package httputil

import (
	"net/http"
)

// NoStore marks a response as uncacheable. Login pages carry sign-in ids
// and user names.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}

// WriteStatus writes a bodyless status response with its standard text
func WriteStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

// WriteHTML writes a rendered page
func WriteHTML(w http.ResponseWriter, status int, body []byte) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(body)
	return err
}

// Redirect sends a 302 to location
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusFound)
}
