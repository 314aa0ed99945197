// Package domain defines the core types and interfaces for fraudgen.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrUnknownCategory is returned for merchant categories outside the closed set.
	ErrUnknownCategory = errors.New("unknown merchant category")

	// ErrNoUsers, ErrNoMerchants and ErrNoActiveCards are precondition
	// violations: generation cannot make progress and fails fast.
	ErrNoUsers       = errors.New("entity pool has no users")
	ErrNoMerchants   = errors.New("entity pool has no merchants")
	ErrNoActiveCards = errors.New("entity pool has no active cards")
)

// Dataset is the complete output of one generation run.
type Dataset struct {
	RunID     string    `json:"runId"`
	Seed      int64     `json:"seed"`
	CreatedAt time.Time `json:"createdAt"`

	Users        []User         `json:"-"`
	Cards        []Card         `json:"-"`
	Merchants    []Merchant     `json:"-"`
	Transactions []Transaction  `json:"-"`
	Alerts       []Alert        `json:"-"`
	Points       []PointsRecord `json:"-"`

	Summary Summary `json:"summary"`
}

// Summary describes how a run went.
type Summary struct {
	Users        int `json:"users"`
	Cards        int `json:"cards"`
	Merchants    int `json:"merchants"`
	Requested    int `json:"requested"`
	Accepted     int `json:"accepted"`
	Attempts     int `json:"attempts"`
	Discarded    int `json:"discarded"`
	FraudCount   int `json:"fraudCount"`
	AlertCount   int `json:"alertCount"`
	HighAlerts   int `json:"highAlerts"`
	MediumAlerts int `json:"mediumAlerts"`
	PointsCount  int `json:"pointsCount"`
	ChecksFailed int `json:"checksFailed"`

	// Short is set when the attempt budget ran out before Requested was reached.
	Short bool `json:"short"`
}

// Window is the time range transaction timestamps are drawn from.
type Window struct {
	Start time.Time
	End   time.Time
}

// DefaultWindow returns the last 90 days ending at now.
func DefaultWindow(now time.Time) Window {
	return Window{Start: now.Add(-90 * 24 * time.Hour), End: now}
}
