package domain

import "time"

// Monitor is a monitored URL plus the denormalized snapshot of its most
// recent check. Pointer fields are unknown/null until a check fills them in.
type Monitor struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`

	// Current-state snapshot, overwritten by the check runners.
	// LastStatus == 0 means the probe could not complete at all
	// (DNS/connect/timeout/TLS), distinct from a real 4xx/5xx.
	LastStatus            int        `json:"last_status"`
	LastResponseTimeMS    *int       `json:"last_response_time_ms"`
	SSLDaysRemaining      *int       `json:"ssl_days_remaining"`
	SSLExpiresAt          *time.Time `json:"ssl_expires_at"`
	HasHSTS               *bool      `json:"has_hsts"`
	RedirectCount         *int       `json:"redirect_count"`
	IsWordPress           *bool      `json:"is_wordpress"`
	WordPressVersion      *string    `json:"wordpress_version"`
	ContentLastModifiedAt *time.Time `json:"content_last_modified_at"`
	StabilityScore        *int       `json:"stability_score"`
	LastCheckedAt         *time.Time `json:"last_checked_at"`

	CreatedAt time.Time `json:"created_at"`
}

// AttemptLog is one immutable record of a single probe attempt.
// StatusCode and ResponseTimeMS are nil when the probe never completed.
type AttemptLog struct {
	ID             int64     `json:"id"`
	MonitorID      int64     `json:"monitor_id"`
	StatusCode     *int      `json:"status_code"`
	ResponseTimeMS *int      `json:"response_time_ms"`
	ErrorMessage   *string   `json:"error_message"`
	CheckedAt      time.Time `json:"checked_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// StateUpdate is the full field set a deep check writes back to a Monitor.
type StateUpdate struct {
	LastStatus            int
	LastResponseTimeMS    *int
	SSLDaysRemaining      *int
	SSLExpiresAt          *time.Time
	HasHSTS               *bool
	RedirectCount         *int
	IsWordPress           *bool
	WordPressVersion      *string
	ContentLastModifiedAt *time.Time
	StabilityScore        *int
	LastCheckedAt         time.Time
}

// HeartbeatUpdate is the subset a light check writes; everything else on the
// Monitor keeps the values from the last deep check.
type HeartbeatUpdate struct {
	LastStatus         int
	LastResponseTimeMS *int
	LastCheckedAt      time.Time
}

// IsUpStatus reports whether an HTTP status counts as "up": 2xx or 3xx.
func IsUpStatus(code int) bool {
	return code >= 200 && code < 400
}
