package domain

import "time"

// User is a generated account holder.
type User struct {
	UserID           string    `json:"user_id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	DateOfBirth      time.Time `json:"date_of_birth"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	Country          string    `json:"country"`
	PostalCode       string    `json:"postal_code"`
	RegistrationDate time.Time `json:"registration_date"`
	IsActive         bool      `json:"is_active"`

	// RiskScore is drawn from Beta(2,5) and lies in [0,1).
	RiskScore float64 `json:"risk_score"`
}

// Card is a payment card owned by exactly one user.
type Card struct {
	CardID         string    `json:"card_id"`
	UserID         string    `json:"user_id"`
	CardNumber     string    `json:"card_number"`
	CardType       string    `json:"card_type"`
	Issuer         string    `json:"issuer"`
	ExpiryDate     time.Time `json:"expiry_date"`
	IsActive       bool      `json:"is_active"`
	CreditLimit    float64   `json:"credit_limit"`
	CurrentBalance float64   `json:"current_balance"`
}

// Merchant is a generated point of sale.
type Merchant struct {
	MerchantID   string   `json:"merchant_id"`
	MerchantName string   `json:"merchant_name"`
	Category     Category `json:"merchant_category"`
	CategoryCode string   `json:"merchant_category_code"`
	Address      string   `json:"address"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	Country      string   `json:"country"`
	PostalCode   string   `json:"postal_code"`
	IsActive     bool     `json:"is_active"`
	RiskScore    float64  `json:"risk_score"`
}

// Fixed enumerations used by the generators.
var (
	CardTypes     = []string{"Visa", "MasterCard", "American Express", "Discover"}
	CardIssuers   = []string{"Chase Bank", "Bank of America", "Wells Fargo", "Citi Bank", "Capital One"}
	CreditLimits  = []float64{5000, 10000, 15000, 20000, 25000, 50000}
	DeviceTypes   = []string{"mobile", "desktop", "tablet", "pos_terminal"}
	SourceSystems = []string{"mobile_app", "web_portal", "pos_terminal", "api"}
)

// DefaultCountry is the country stamped on every generated address.
const DefaultCountry = "USA"
