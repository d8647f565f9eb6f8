package ratelimit

import (
	"fmt"
	"time"
)

// Entry is one counter row per (subject-or-ip, action).
//
// Lifecycle: created on first attempt, incremented or reset per window, may
// transition to blocked, and naturally goes stale. Stale rows are purged by
// the cleanup job after the configured retention; nothing depends on them
// being deleted promptly.
type Entry struct {
	Key          string     `json:"key" db:"key"`
	Attempts     int        `json:"attempts" db:"attempts"`
	WindowStart  time.Time  `json:"window_start" db:"window_start"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty" db:"blocked_until"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Config bounds one action's request budget.
type Config struct {
	Window        time.Duration
	MaxAttempts   int
	BlockDuration time.Duration
}

// Result is the outcome of a single rate-limit check.
type Result struct {
	Allowed           bool       `json:"allowed"`
	RemainingAttempts int        `json:"remaining_attempts"`
	BlockedUntil      *time.Time `json:"blocked_until,omitempty"`
}

// Recognized action names. These are part of the caller contract; checking an
// action outside this set without an override config is a caller error.
const (
	ActionEnrollmentRequest    = "enrollment_request"
	ActionEnrollmentSubmission = "enrollment_submission"
	ActionWaitlistJoin         = "waitlist_join"
	ActionClassSearch          = "class_search"
	ActionInvitationAccept     = "invitation_accept"
)

// ipBudgetFactor scales per-user budgets up for IP-scoped checks, since one
// IP legitimately aggregates many users (campus NAT, shared labs).
const ipBudgetFactor = 20

// DefaultConfigs returns the static per-user budget table.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		ActionEnrollmentRequest:    {Window: time.Minute, MaxAttempts: 5, BlockDuration: 15 * time.Minute},
		ActionEnrollmentSubmission: {Window: 5 * time.Minute, MaxAttempts: 3, BlockDuration: 30 * time.Minute},
		ActionWaitlistJoin:         {Window: time.Minute, MaxAttempts: 10, BlockDuration: 10 * time.Minute},
		ActionClassSearch:          {Window: time.Minute, MaxAttempts: 30, BlockDuration: 5 * time.Minute},
		ActionInvitationAccept:     {Window: 10 * time.Minute, MaxAttempts: 5, BlockDuration: time.Hour},
	}
}

// DefaultIPConfigs returns the IP-scoped budget table.
func DefaultIPConfigs() map[string]Config {
	out := make(map[string]Config, len(DefaultConfigs()))
	for action, cfg := range DefaultConfigs() {
		cfg.MaxAttempts *= ipBudgetFactor
		out[action] = cfg
	}
	return out
}

func subjectKey(subjectID, action string) string {
	return fmt.Sprintf("%s:%s", subjectID, action)
}

func ipKey(ip, action string) string {
	return fmt.Sprintf("ip:%s:%s", ip, action)
}
