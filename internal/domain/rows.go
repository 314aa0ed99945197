package domain

import (
	"strconv"
	"time"
)

// Column layouts for tabular export. Names and order match the tables
// downstream consumers already read.
var (
	UserColumns = []string{
		"user_id", "first_name", "last_name", "email", "phone", "date_of_birth",
		"address", "city", "state", "country", "postal_code", "registration_date",
		"is_active", "risk_score",
	}
	CardColumns = []string{
		"card_id", "user_id", "card_number", "card_type", "issuer", "expiry_date",
		"is_active", "credit_limit", "current_balance",
	}
	MerchantColumns = []string{
		"merchant_id", "merchant_name", "merchant_category", "merchant_category_code",
		"address", "city", "state", "country", "postal_code", "is_active", "risk_score",
	}
	TransactionColumns = []string{
		"transaction_id", "card_id", "card_number", "user_id", "merchant_id",
		"merchant_name", "merchant_category", "amount", "currency", "transaction_time",
		"location", "latitude", "longitude", "device_id", "device_type", "source_system",
		"seconds_since_prev_tx", "is_fraud", "fraud_probability", "created_at",
	}
	AlertColumns = []string{
		"alert_id", "transaction_id", "user_id", "fraud_probability", "risk_level",
		"alert_type", "description", "status", "created_at",
	}
	PointsColumns = []string{"user_id", "total_spent", "points"}
)

// Timestamp layouts used in exported rows.
const (
	TimeLayout = "2006-01-02T15:04:05"
	DateLayout = "2006-01-02"
)

// Row returns the user as strings in UserColumns order.
func (u *User) Row() []string {
	return []string{
		u.UserID, u.FirstName, u.LastName, u.Email, u.Phone,
		u.DateOfBirth.Format(DateLayout),
		u.Address, u.City, u.State, u.Country, u.PostalCode,
		u.RegistrationDate.Format(TimeLayout),
		formatBool(u.IsActive), formatFloat(u.RiskScore),
	}
}

// Row returns the card as strings in CardColumns order.
func (c *Card) Row() []string {
	return []string{
		c.CardID, c.UserID, c.CardNumber, c.CardType, c.Issuer,
		c.ExpiryDate.Format(DateLayout),
		formatBool(c.IsActive), formatFloat(c.CreditLimit), formatFloat(c.CurrentBalance),
	}
}

// Row returns the merchant as strings in MerchantColumns order.
func (m *Merchant) Row() []string {
	return []string{
		m.MerchantID, m.MerchantName, string(m.Category), m.CategoryCode,
		m.Address, m.City, m.State, m.Country, m.PostalCode,
		formatBool(m.IsActive), formatFloat(m.RiskScore),
	}
}

// Row returns the transaction as strings in TransactionColumns order.
// A nil SecondsSincePrevTx is written as an empty cell.
func (t *Transaction) Row() []string {
	gap := ""
	if t.SecondsSincePrevTx != nil {
		gap = formatFloat(*t.SecondsSincePrevTx)
	}
	return []string{
		t.TransactionID, t.CardID, t.CardNumber, t.UserID, t.MerchantID,
		t.MerchantName, string(t.MerchantCategory), formatFloat(t.Amount), t.Currency,
		t.TransactionTime.Format(TimeLayout),
		string(t.Location), formatFloat(t.Latitude), formatFloat(t.Longitude),
		t.DeviceID, t.DeviceType, t.SourceSystem,
		gap, formatBool(t.IsFraud), formatFloat(t.FraudProbability),
		t.CreatedAt.Format(TimeLayout),
	}
}

// Row returns the alert as strings in AlertColumns order.
func (a *Alert) Row() []string {
	return []string{
		a.AlertID, a.TransactionID, a.UserID, formatFloat(a.FraudProbability),
		string(a.RiskLevel), a.AlertType, a.Description, a.Status,
		a.CreatedAt.Format(TimeLayout),
	}
}

// Row returns the points record as strings in PointsColumns order.
func (p *PointsRecord) Row() []string {
	return []string{p.UserID, formatFloat(p.TotalSpent), strconv.FormatInt(p.Points, 10)}
}

// ParseTime parses a timestamp written with TimeLayout.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatBool writes booleans as True/False, matching existing consumers.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
