// Package export writes datasets as CSV tables and reads them back.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// Table file names.
const (
	UsersFile        = "users.csv"
	CardsFile        = "cards.csv"
	MerchantsFile    = "merchants.csv"
	TransactionsFile = "transactions.csv"
	AlertsFile       = "fraud_alerts.csv"
	PointsFile       = "points.csv"
)

// Files lists every table file in write order.
var Files = []string{UsersFile, CardsFile, MerchantsFile, TransactionsFile, AlertsFile, PointsFile}

// WriteDir writes the six tables of ds into dir, creating it if needed.
func WriteDir(dir string, ds *domain.Dataset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tables := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{UsersFile, func(w io.Writer) error { return WriteUsers(w, ds.Users) }},
		{CardsFile, func(w io.Writer) error { return WriteCards(w, ds.Cards) }},
		{MerchantsFile, func(w io.Writer) error { return WriteMerchants(w, ds.Merchants) }},
		{TransactionsFile, func(w io.Writer) error { return WriteTransactions(w, ds.Transactions) }},
		{AlertsFile, func(w io.Writer) error { return WriteAlerts(w, ds.Alerts) }},
		{PointsFile, func(w io.Writer) error { return WritePoints(w, ds.Points) }},
	}

	for _, t := range tables {
		if err := writeFile(filepath.Join(dir, t.name), t.fn); err != nil {
			return fmt.Errorf("failed to write %s: %w", t.name, err)
		}
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type rower interface {
	Row() []string
}

func writeTable[T any, P interface {
	*T
	rower
}](w io.Writer, header []string, rows []T) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range rows {
		if err := cw.Write(P(&rows[i]).Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUsers writes the users table.
func WriteUsers(w io.Writer, users []domain.User) error {
	return writeTable(w, domain.UserColumns, users)
}

// WriteCards writes the cards table.
func WriteCards(w io.Writer, cards []domain.Card) error {
	return writeTable(w, domain.CardColumns, cards)
}

// WriteMerchants writes the merchants table.
func WriteMerchants(w io.Writer, merchants []domain.Merchant) error {
	return writeTable(w, domain.MerchantColumns, merchants)
}

// WriteTransactions writes the transactions table.
func WriteTransactions(w io.Writer, txs []domain.Transaction) error {
	return writeTable(w, domain.TransactionColumns, txs)
}

// WriteAlerts writes the fraud alerts table.
func WriteAlerts(w io.Writer, alerts []domain.Alert) error {
	return writeTable(w, domain.AlertColumns, alerts)
}

// WritePoints writes the points table.
func WritePoints(w io.Writer, points []domain.PointsRecord) error {
	return writeTable(w, domain.PointsColumns, points)
}

// ReadTransactions parses a transactions table written by WriteTransactions.
func ReadTransactions(r io.Reader) ([]domain.Transaction, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) != len(domain.TransactionColumns) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(domain.TransactionColumns), len(header))
	}

	var txs []domain.Transaction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return txs, nil
		}
		if err != nil {
			return nil, err
		}
		tx, err := parseTransaction(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		txs = append(txs, tx)
	}
}

func parseTransaction(rec []string) (domain.Transaction, error) {
	p := &parser{rec: rec}
	tx := domain.Transaction{
		TransactionID: p.str(0),
		CardID:        p.str(1),
		CardNumber:    p.str(2),
		UserID:        p.str(3),
		MerchantID:    p.str(4),
		MerchantName:  p.str(5),
	}

	category, err := domain.ParseCategory(p.str(6))
	if err != nil {
		return tx, err
	}
	tx.MerchantCategory = category
	tx.Amount = p.float(7)
	tx.Currency = p.str(8)
	tx.TransactionTime = p.timestamp(9)
	tx.Location = domain.Location(p.str(10))
	tx.Latitude = p.float(11)
	tx.Longitude = p.float(12)
	tx.DeviceID = p.str(13)
	tx.DeviceType = p.str(14)
	tx.SourceSystem = p.str(15)
	if rec[16] != "" {
		gap := p.float(16)
		tx.SecondsSincePrevTx = &gap
	}
	tx.IsFraud = p.bool(17)
	tx.FraudProbability = p.float(18)
	tx.CreatedAt = p.timestamp(19)

	return tx, p.err
}

// parser keeps the first conversion error.
type parser struct {
	rec []string
	err error
}

func (p *parser) str(i int) string { return p.rec[i] }

func (p *parser) float(i int) float64 {
	v, err := strconv.ParseFloat(p.rec[i], 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", domain.TransactionColumns[i], err)
	}
	return v
}

func (p *parser) bool(i int) bool {
	v, err := strconv.ParseBool(p.rec[i])
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", domain.TransactionColumns[i], err)
	}
	return v
}

func (p *parser) timestamp(i int) time.Time {
	v, err := domain.ParseTime(p.rec[i])
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", domain.TransactionColumns[i], err)
	}
	return v
}
