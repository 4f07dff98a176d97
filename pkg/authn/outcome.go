package authn

import "context"

// OutcomeKind enumerates the results a user service may return
type OutcomeKind int

const (
	OutcomeRejected OutcomeKind = iota
	OutcomeSuccess
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "rejected"
	}
}

// Outcome is the result of authenticating a user
type Outcome struct {
	Kind                OutcomeKind
	Identity            *Identity
	Partial             bool
	PartialRedirectPath string
	ErrorMessage        string
}

// Success is a final sign-in for the identity
func Success(id *Identity) *Outcome {
	return &Outcome{Kind: OutcomeSuccess, Identity: id}
}

// PartialSuccess signs the identity in part way. The browser is sent to
// redirectPath to complete an additional step before returning to resume.
func PartialSuccess(id *Identity, redirectPath string) *Outcome {
	return &Outcome{Kind: OutcomeSuccess, Identity: id, Partial: true, PartialRedirectPath: redirectPath}
}

// Rejected means no matching user
func Rejected() *Outcome {
	return &Outcome{Kind: OutcomeRejected}
}

// Failure carries a message for display
func Failure(message string) *Outcome {
	return &Outcome{Kind: OutcomeError, ErrorMessage: message}
}

// IsSuccess reports whether the outcome carries a usable identity
func (o *Outcome) IsSuccess() bool {
	return o != nil && o.Kind == OutcomeSuccess && o.Identity != nil
}

// IsError reports whether the outcome carries a display message
func (o *Outcome) IsError() bool {
	return o != nil && o.Kind == OutcomeError
}

// UserService resolves credentials or federated identities to users.
//
// A nil outcome with a nil error is treated as Rejected. A non-nil error is
// an infrastructure failure and is never shown to the user.
type UserService interface {
	AuthenticateLocal(ctx context.Context, username, password string, msg *SignInMessage) (*Outcome, error)
	AuthenticateExternal(ctx context.Context, ext *ExternalIdentity) (*Outcome, error)
}
