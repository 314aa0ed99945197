package rules

// BuiltinChecks returns the invariants every generated transaction holds.
func BuiltinChecks() []*Check {
	return []*Check{
		{
			ID:         "probability-range",
			Name:       "Fraud probability within [0,1]",
			Expression: "fraud_probability >= 0.0 && fraud_probability <= 1.0",
			Enabled:    true,
		},
		{
			ID:         "fraud-floor",
			Name:       "Labeled fraud scored at least 0.5",
			Expression: "!is_fraud || fraud_probability >= 0.5",
			Enabled:    true,
		},
		{
			ID:         "amount-positive",
			Name:       "Amount is positive",
			Expression: "amount > 0.0",
			Enabled:    true,
		},
		{
			ID:          "amount-cap",
			Name:        "Amount within label cap",
			Description: "Fraud amounts are capped at 50000, others at 5000.",
			Expression:  "is_fraud ? amount <= 50000.0 : amount <= 5000.0",
			Enabled:     true,
		},
		{
			ID:          "location-partition",
			Name:        "High-risk locations only on fraud",
			Description: "Non-fraud transactions are always placed in a normal location.",
			Expression:  "is_fraud || !location_high_risk",
			Enabled:     true,
		},
		{
			ID:         "currency",
			Name:       "Currency is USD",
			Expression: `currency == "USD"`,
			Enabled:    true,
		},
	}
}
