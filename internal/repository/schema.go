package repository

// Schema definitions for generated datasets. Every table is keyed by run_id
// so runs never mix. Compatible with both SQLite and PostgreSQL.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    seed BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    summary TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    run_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT NOT NULL,
    phone TEXT NOT NULL,
    date_of_birth TIMESTAMP NOT NULL,
    address TEXT NOT NULL,
    city TEXT NOT NULL,
    state TEXT NOT NULL,
    country TEXT NOT NULL,
    postal_code TEXT NOT NULL,
    registration_date TIMESTAMP NOT NULL,
    is_active BOOLEAN NOT NULL,
    risk_score DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, user_id)
);
`

const schemaCards = `
CREATE TABLE IF NOT EXISTS cards (
    run_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    card_number TEXT NOT NULL,
    card_type TEXT NOT NULL,
    issuer TEXT NOT NULL,
    expiry_date TIMESTAMP NOT NULL,
    is_active BOOLEAN NOT NULL,
    credit_limit DOUBLE PRECISION NOT NULL,
    current_balance DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, card_id)
);

CREATE INDEX IF NOT EXISTS idx_cards_user ON cards(run_id, user_id);
`

const schemaMerchants = `
CREATE TABLE IF NOT EXISTS merchants (
    run_id TEXT NOT NULL,
    merchant_id TEXT NOT NULL,
    merchant_name TEXT NOT NULL,
    merchant_category TEXT NOT NULL,
    merchant_category_code TEXT NOT NULL,
    address TEXT NOT NULL,
    city TEXT NOT NULL,
    state TEXT NOT NULL,
    country TEXT NOT NULL,
    postal_code TEXT NOT NULL,
    is_active BOOLEAN NOT NULL,
    risk_score DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, merchant_id)
);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    run_id TEXT NOT NULL,
    transaction_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    card_number TEXT NOT NULL,
    user_id TEXT NOT NULL,
    merchant_id TEXT NOT NULL,
    merchant_name TEXT NOT NULL,
    merchant_category TEXT NOT NULL,
    amount DOUBLE PRECISION NOT NULL,
    currency TEXT NOT NULL,
    transaction_time TIMESTAMP NOT NULL,
    location TEXT NOT NULL,
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    device_id TEXT NOT NULL,
    device_type TEXT NOT NULL,
    source_system TEXT NOT NULL,
    seconds_since_prev_tx DOUBLE PRECISION,
    is_fraud BOOLEAN NOT NULL,
    fraud_probability DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, transaction_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_card ON transactions(run_id, card_id);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(run_id, user_id);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    run_id TEXT NOT NULL,
    alert_id TEXT NOT NULL,
    transaction_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    fraud_probability DOUBLE PRECISION NOT NULL,
    risk_level TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    description TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, alert_id)
);

CREATE INDEX IF NOT EXISTS idx_alerts_level ON fraud_alerts(run_id, risk_level);
`

const schemaPoints = `
CREATE TABLE IF NOT EXISTS points (
    run_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    total_spent DOUBLE PRECISION NOT NULL,
    points BIGINT NOT NULL,
    PRIMARY KEY (run_id, user_id)
);
`

// AllSchemas returns all schema definitions in dependency order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaUsers,
		schemaCards,
		schemaMerchants,
		schemaTransactions,
		schemaAlerts,
		schemaPoints,
	}
}
