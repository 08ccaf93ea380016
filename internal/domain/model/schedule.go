package model

import "time"

// Schedule describes when the daily delivery fires. It is re-derived from
// configuration on every process start and never persisted.
type Schedule struct {
	SendTime string // "HH:MM", 24-hour clock
	Timezone string // IANA zone name, e.g. "America/Sao_Paulo"
	Enabled  bool
}

// AttemptOutcome is the terminal result of one delivery attempt.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
)

// SendAttempt records the most recent delivery attempt for status reporting.
// It lives only in memory and only for as long as the retry window.
type SendAttempt struct {
	ScheduledFor time.Time
	Attempt      int
	Outcome      AttemptOutcome
	Duration     time.Duration
}
