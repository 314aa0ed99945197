package domain

import (
	"time"
)

// Transaction is a synthesized card transaction.
// Transactions are immutable once accepted by the synthesizer.
type Transaction struct {
	// Core identifiers
	TransactionID string `json:"transaction_id"`
	CardID        string `json:"card_id"`
	CardNumber    string `json:"card_number"`
	UserID        string `json:"user_id"`

	// Merchant
	MerchantID       string   `json:"merchant_id"`
	MerchantName     string   `json:"merchant_name"`
	MerchantCategory Category `json:"merchant_category"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Temporal
	TransactionTime time.Time `json:"transaction_time"`

	// Where and how
	Location     Location `json:"location"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	DeviceID     string   `json:"device_id"`
	DeviceType   string   `json:"device_type"`
	SourceSystem string   `json:"source_system"`

	// SecondsSincePrevTx is nil for the first transaction generated for a
	// card and the generation-order gap otherwise. It can be negative.
	SecondsSincePrevTx *float64 `json:"seconds_since_prev_tx"`

	// Labels
	IsFraud          bool    `json:"is_fraud"`
	FraudProbability float64 `json:"fraud_probability"`

	CreatedAt time.Time `json:"created_at"`
}

// Alert is derived from a transaction whose fraud probability crossed the
// alert threshold. Alerts are never mutated after derivation.
type Alert struct {
	AlertID          string    `json:"alert_id"`
	TransactionID    string    `json:"transaction_id"`
	UserID           string    `json:"user_id"`
	FraudProbability float64   `json:"fraud_probability"`
	RiskLevel        RiskLevel `json:"risk_level"`
	AlertType        string    `json:"alert_type"`
	Description      string    `json:"description"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// RiskLevel grades an alert.
type RiskLevel string

const (
	RiskLevelHigh   RiskLevel = "high"
	RiskLevelMedium RiskLevel = "medium"
)

// Alert constants
const (
	AlertTypeAutomatic = "automatic_fraud_detection"

	AlertStatusPending  = "pending"
	AlertStatusReviewed = "reviewed"
	AlertStatusResolved = "resolved"
)

// AlertStatuses lists the statuses an alert is drawn from.
var AlertStatuses = []string{AlertStatusPending, AlertStatusReviewed, AlertStatusResolved}

// PointsRecord is the rewards rollup for one user.
type PointsRecord struct {
	UserID     string  `json:"user_id"`
	TotalSpent float64 `json:"total_spent"`
	Points     int64   `json:"points"`
}

// DefaultCurrency is the currency of every generated transaction.
const DefaultCurrency = "USD"
