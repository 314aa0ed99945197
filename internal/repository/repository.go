// Package repository persists generated datasets in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository on database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured database and runs migrations.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite", "":
		cfg.Driver = "sqlite"
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := r.db.Exec(stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveDataset writes a run and all of its records in one transaction.
func (r *SQLRepository) SaveDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.RunID == "" {
		return fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	summary, err := json.Marshal(ds.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		r.rebind(`INSERT INTO runs (id, seed, created_at, summary) VALUES (?, ?, ?, ?)`),
		ds.RunID, ds.Seed, ds.CreatedAt.UTC(), string(summary),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := r.insertAll(ctx, tx, "users", userInsert, len(ds.Users), func(i int) []any {
		u := &ds.Users[i]
		return []any{ds.RunID, u.UserID, u.FirstName, u.LastName, u.Email, u.Phone, u.DateOfBirth.UTC(),
			u.Address, u.City, u.State, u.Country, u.PostalCode, u.RegistrationDate.UTC(), u.IsActive, u.RiskScore}
	}); err != nil {
		return err
	}

	if err := r.insertAll(ctx, tx, "cards", cardInsert, len(ds.Cards), func(i int) []any {
		c := &ds.Cards[i]
		return []any{ds.RunID, c.CardID, c.UserID, c.CardNumber, c.CardType, c.Issuer, c.ExpiryDate.UTC(),
			c.IsActive, c.CreditLimit, c.CurrentBalance}
	}); err != nil {
		return err
	}

	if err := r.insertAll(ctx, tx, "merchants", merchantInsert, len(ds.Merchants), func(i int) []any {
		m := &ds.Merchants[i]
		return []any{ds.RunID, m.MerchantID, m.MerchantName, string(m.Category), m.CategoryCode,
			m.Address, m.City, m.State, m.Country, m.PostalCode, m.IsActive, m.RiskScore}
	}); err != nil {
		return err
	}

	if err := r.insertAll(ctx, tx, "transactions", transactionInsert, len(ds.Transactions), func(i int) []any {
		t := &ds.Transactions[i]
		var gap sql.NullFloat64
		if t.SecondsSincePrevTx != nil {
			gap = sql.NullFloat64{Float64: *t.SecondsSincePrevTx, Valid: true}
		}
		return []any{ds.RunID, t.TransactionID, t.CardID, t.CardNumber, t.UserID, t.MerchantID, t.MerchantName,
			string(t.MerchantCategory), t.Amount, t.Currency, t.TransactionTime.UTC(), string(t.Location),
			t.Latitude, t.Longitude, t.DeviceID, t.DeviceType, t.SourceSystem, gap, t.IsFraud,
			t.FraudProbability, t.CreatedAt.UTC()}
	}); err != nil {
		return err
	}

	if err := r.insertAll(ctx, tx, "fraud_alerts", alertInsert, len(ds.Alerts), func(i int) []any {
		a := &ds.Alerts[i]
		return []any{ds.RunID, a.AlertID, a.TransactionID, a.UserID, a.FraudProbability, string(a.RiskLevel),
			a.AlertType, a.Description, a.Status, a.CreatedAt.UTC()}
	}); err != nil {
		return err
	}

	if err := r.insertAll(ctx, tx, "points", pointsInsert, len(ds.Points), func(i int) []any {
		p := &ds.Points[i]
		return []any{ds.RunID, p.UserID, p.TotalSpent, p.Points}
	}); err != nil {
		return err
	}

	return tx.Commit()
}

const (
	userInsert = `INSERT INTO users (run_id, user_id, first_name, last_name, email, phone, date_of_birth,
		address, city, state, country, postal_code, registration_date, is_active, risk_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	cardInsert = `INSERT INTO cards (run_id, card_id, user_id, card_number, card_type, issuer, expiry_date,
		is_active, credit_limit, current_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	merchantInsert = `INSERT INTO merchants (run_id, merchant_id, merchant_name, merchant_category,
		merchant_category_code, address, city, state, country, postal_code, is_active, risk_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	transactionInsert = `INSERT INTO transactions (run_id, transaction_id, card_id, card_number, user_id,
		merchant_id, merchant_name, merchant_category, amount, currency, transaction_time, location,
		latitude, longitude, device_id, device_type, source_system, seconds_since_prev_tx, is_fraud,
		fraud_probability, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	alertInsert = `INSERT INTO fraud_alerts (run_id, alert_id, transaction_id, user_id, fraud_probability,
		risk_level, alert_type, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	pointsInsert = `INSERT INTO points (run_id, user_id, total_spent, points) VALUES (?, ?, ?, ?)`
)

// insertAll runs one prepared insert per row.
func (r *SQLRepository) insertAll(ctx context.Context, tx *sql.Tx, table, query string, n int, args func(int) []any) error {
	if n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(query))
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

// GetRun returns a run's metadata and summary. Record slices are not loaded.
func (r *SQLRepository) GetRun(ctx context.Context, runID string) (*domain.Dataset, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT id, seed, created_at, summary FROM runs WHERE id = ?`), runID)
	ds, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ds, err
}

// ListRuns returns every run, newest first.
func (r *SQLRepository) ListRuns(ctx context.Context) ([]*domain.Dataset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, seed, created_at, summary FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Dataset
	for rows.Next() {
		ds, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, ds)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.Dataset, error) {
	var ds domain.Dataset
	var summary string
	if err := s.Scan(&ds.RunID, &ds.Seed, &ds.CreatedAt, &summary); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(summary), &ds.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary of run %s: %w", ds.RunID, err)
	}
	return &ds, nil
}

const transactionColumns = `transaction_id, card_id, card_number, user_id, merchant_id, merchant_name,
	merchant_category, amount, currency, transaction_time, location, latitude, longitude, device_id,
	device_type, source_system, seconds_since_prev_tx, is_fraud, fraud_probability, created_at`

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var category, location string
	var gap sql.NullFloat64
	err := s.Scan(&t.TransactionID, &t.CardID, &t.CardNumber, &t.UserID, &t.MerchantID, &t.MerchantName,
		&category, &t.Amount, &t.Currency, &t.TransactionTime, &location, &t.Latitude, &t.Longitude,
		&t.DeviceID, &t.DeviceType, &t.SourceSystem, &gap, &t.IsFraud, &t.FraudProbability, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.MerchantCategory = domain.Category(category)
	t.Location = domain.Location(location)
	if gap.Valid {
		v := gap.Float64
		t.SecondsSincePrevTx = &v
	}
	return &t, nil
}

// GetTransaction returns one transaction of a run.
func (r *SQLRepository) GetTransaction(ctx context.Context, runID string, txID string) (*domain.Transaction, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE run_id = ? AND transaction_id = ?`
	t, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), runID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTransactionsByCard returns a card's transactions in generation order.
func (r *SQLRepository) ListTransactionsByCard(ctx context.Context, runID string, cardID string) ([]*domain.Transaction, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE run_id = ? AND card_id = ? ORDER BY transaction_id`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), runID, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListAlerts returns a run's alerts, optionally filtered by level.
func (r *SQLRepository) ListAlerts(ctx context.Context, runID string, level domain.RiskLevel) ([]*domain.Alert, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := `SELECT alert_id, transaction_id, user_id, fraud_probability, risk_level, alert_type,
		description, status, created_at FROM fraud_alerts WHERE run_id = ?`
	args := []any{runID}
	if level != "" {
		query += ` AND risk_level = ?`
		args = append(args, string(level))
	}
	query += ` ORDER BY alert_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var lvl string
		if err := rows.Scan(&a.AlertID, &a.TransactionID, &a.UserID, &a.FraudProbability, &lvl,
			&a.AlertType, &a.Description, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.RiskLevel = domain.RiskLevel(lvl)
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// GetPoints returns a user's points record within a run.
func (r *SQLRepository) GetPoints(ctx context.Context, runID string, userID string) (*domain.PointsRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	var p domain.PointsRecord
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT user_id, total_spent, points FROM points WHERE run_id = ? AND user_id = ?`),
		runID, userID,
	).Scan(&p.UserID, &p.TotalSpent, &p.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
