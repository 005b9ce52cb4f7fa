package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/federicoroldos/sofull-site/internal/domain"
)

// Plan is the outcome of the pure send decision: which notifications this
// auth event is owed. Welcome and login are mutually exclusive by
// construction (login presumes the welcome was already sent), but the
// dispatcher treats them as independent flags.
type Plan struct {
	SendWelcome bool
	SendLogin   bool

	// DuplicateAuthEvent is set when the assertion's auth_time is not newer
	// than the last one recorded, i.e. a replayed sign-in instant.
	DuplicateAuthEvent bool
}

// Empty reports whether the plan requires no work.
func (p Plan) Empty() bool { return !p.SendWelcome && !p.SendLogin }

// ComputePlan decides which notifications to send for an auth event. state
// may be nil (brand-new user). When the assertion carries no auth_time, the
// login email is suppressed inside the cooldown window after the previous
// one, since replay detection by instant is impossible.
func ComputePlan(state *domain.EmailState, authTimeMs *int64, now time.Time, loginCooldown time.Duration) Plan {
	var plan Plan

	welcomeSent := state != nil && state.WelcomeSent
	plan.SendWelcome = !welcomeSent

	if authTimeMs != nil && state != nil && state.LastAuthEventTime != nil && *authTimeMs <= *state.LastAuthEventTime {
		plan.DuplicateAuthEvent = true
	}

	plan.SendLogin = !plan.SendWelcome && !plan.DuplicateAuthEvent
	if plan.SendLogin && authTimeMs == nil && state != nil && state.LastLoginEmailAt != nil {
		sinceLast := now.UnixMilli() - *state.LastLoginEmailAt
		if sinceLast < loginCooldown.Milliseconds() {
			plan.SendLogin = false
		}
	}
	return plan
}

// EventID derives the idempotency key for one notification: the same event
// type at the same sign-in instant always maps to the same id, so replays
// are recognized as duplicates by the claim step.
func EventID(t domain.EventType, instantMs int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", t, instantMs)))
	return hex.EncodeToString(sum[:16])
}
