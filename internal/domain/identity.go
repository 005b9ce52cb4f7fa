package domain

// Identity holds the claims extracted from a verified identity assertion.
// AuthTimeMs is the instant the underlying sign-in happened, in epoch
// milliseconds; nil when the provider did not report it.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	AuthTimeMs  *int64
}

// ClientMetadata carries best-effort request context recorded alongside a
// dispatch outcome. Every field may be empty.
type ClientMetadata struct {
	Locale    string `json:"locale,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	IP        string `json:"ip,omitempty"`
}
