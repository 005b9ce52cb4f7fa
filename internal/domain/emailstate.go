package domain

// EventType identifies which notification an auth event may trigger.
type EventType string

const (
	EventWelcome EventType = "welcome"
	EventLogin   EventType = "login"
)

// EventStatus is the lifecycle of a single notification attempt.
type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventSent    EventStatus = "sent"
	EventFailed  EventStatus = "failed"
)

// EmailEvent is the durable record of one claimed notification. Records are
// never deleted; a failed record may be reclaimed by a retry carrying the
// same event id.
type EmailEvent struct {
	EventID    string      `json:"event_id" dynamodbav:"event_id"`
	Status     EventStatus `json:"status" dynamodbav:"status"`
	CreatedAt  int64       `json:"created_at" dynamodbav:"created_at"`
	AuthTimeMs *int64      `json:"auth_time_ms,omitempty" dynamodbav:"auth_time_ms,omitempty"`
	SentAt     *int64      `json:"sent_at,omitempty" dynamodbav:"sent_at,omitempty"`
	FailedAt   *int64      `json:"failed_at,omitempty" dynamodbav:"failed_at,omitempty"`
}

// EmailState is the per-user notification ledger. One item per uid; mutated
// only through conditional writes in the email-state store.
type EmailState struct {
	UserID            string                    `json:"user_id" dynamodbav:"user_id"`
	WelcomeSent       bool                      `json:"welcome_sent" dynamodbav:"welcome_sent"`
	LastAuthEventTime *int64                    `json:"last_auth_event_time,omitempty" dynamodbav:"last_auth_event_time,omitempty"`
	LastLoginEmailAt  *int64                    `json:"last_login_email_at,omitempty" dynamodbav:"last_login_email_at,omitempty"`
	Events            map[EventType]EmailEvent  `json:"events,omitempty" dynamodbav:"events,omitempty"`
}

// EmailStateMutation is a partial update of the ledger's top-level fields.
// Nil fields are left untouched; the events map is never mutated this way.
type EmailStateMutation struct {
	WelcomeSent       *bool
	LastAuthEventTime *int64
	LastLoginEmailAt  *int64
}

// Event returns the recorded event for the given type, if any.
func (s *EmailState) Event(t EventType) (EmailEvent, bool) {
	if s == nil || s.Events == nil {
		return EmailEvent{}, false
	}
	ev, ok := s.Events[t]
	return ev, ok
}
