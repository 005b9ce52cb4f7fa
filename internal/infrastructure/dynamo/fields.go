package dynamo

// DynamoDB attribute names used in update expressions across the email-state
// repo. Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldWelcomeSent       = "welcome_sent"
	fieldLastAuthEventTime = "last_auth_event_time"
	fieldLastLoginEmailAt  = "last_login_email_at"
	fieldEvents            = "events"
)
