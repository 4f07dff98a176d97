// Package httputil provides HTTP utilities shared by the login endpoints.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.SecurityHeadersMiddleware,
//		httputil.MaxBytesMiddleware(64*1024),
//	)(router)
//
// RequestIDMiddleware must run before LoggingMiddleware so that the request
// scoped logger carries the id.
//
// # Request Parsing
//
//	if err := httputil.ParseLoginForm(r); err != nil {
//		httputil.WriteStatus(w, http.StatusBadRequest)
//		return
//	}
//	username := httputil.PostFormValue(r, "username")
//
// # Responses
//
//	httputil.NoStore(w)
//	httputil.WriteHTML(w, http.StatusOK, page)
package httputil
