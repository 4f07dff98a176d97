// Package flow decides what happens next at every step of a browser login.
//
// The Orchestrator exposes one method per endpoint of the login surface.
// Each method reads the sign-in correlation message and the session slots
// carried by the request, consults the user service, mutates the slots and
// the correlation store, and returns a Result describing the page or
// redirect to send. A Result is one of LoginPage, LogoutPromptPage,
// LoggedOutPage, ErrorPage, Redirect or StatusOnly; no error ever leaves
// the orchestrator.
//
// Every operation that names a sign-in id resolves it first. A missing id or
// an unreadable message yields the same ErrorPage and leaves all state
// untouched.
package flow
