package flow

import (
	"time"

	"github.com/platinummonkey/threshold/pkg/session"
)

// RememberMeOptIn is the only submitted value that means "remember me"
const RememberMeOptIn = "true"

// RememberMe is the user's normalized remember-me choice
type RememberMe int

const (
	// RememberMeNotOffered means the checkbox was never shown
	RememberMeNotOffered RememberMe = iota
	// RememberMeAccepted means the user ticked the checkbox
	RememberMeAccepted
	// RememberMeDeclined means the checkbox was shown and left empty
	RememberMeDeclined
)

func (r RememberMe) String() string {
	switch r {
	case RememberMeAccepted:
		return "accepted"
	case RememberMeDeclined:
		return "declined"
	default:
		return "not_offered"
	}
}

// NormalizeRememberMe maps a submitted checkbox value to a choice. Browsers
// omit unticked checkboxes, so with the feature on anything but the opt-in
// value counts as declined.
func NormalizeRememberMe(allowed bool, submitted string) RememberMe {
	if !allowed {
		return RememberMeNotOffered
	}
	if submitted == RememberMeOptIn {
		return RememberMeAccepted
	}
	return RememberMeDeclined
}

// Persistence returns the primary slot cookie policy for a final sign-in.
// An explicit expiry is set only when the user accepted; otherwise a
// persistent cookie uses the slot's default lifetime.
func (o Options) Persistence(choice RememberMe, now time.Time) session.Persistence {
	var p session.Persistence
	if choice == RememberMeAccepted || (choice != RememberMeDeclined && o.PersistentCookies) {
		p.Persistent = true
		if choice == RememberMeAccepted {
			p.ExpiresAt = now.Add(o.RememberMeDuration)
		}
	}
	return p
}
