// Package repo stores calculation audit records and engineer accounts.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Wallcheck/internal/calc/api579"
	"Wallcheck/internal/calc/rbi"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// UserStore keeps the engineers allowed to trigger assessments.
type UserStore interface {
	CreateUser(ctx context.Context, login, email, password string) (int, error)
	// GetBylogin returns id 0 and an empty hash for an unknown login.
	GetBylogin(ctx context.Context, login string) (int, string, error)
}

// CalculationStore is the append-only audit trail of calculations and RBI results.
// Saves are idempotent: a calculation is keyed by its request key, an RBI result by its id,
// and re-saving returns the row already stored.
type CalculationStore interface {
	SaveCalculation(ctx context.Context, c StoredCalculation, results ...StoredRBI) (StoredCalculation, error)
	GetCalculation(ctx context.Context, id string) (StoredCalculation, error)
	ListCalculations(ctx context.Context, equipmentID string) ([]StoredCalculation, error)
	SaveRBI(ctx context.Context, r StoredRBI) (StoredRBI, error)
	ListRBI(ctx context.Context, calculationID string) ([]StoredRBI, error)
}

type Store interface {
	UserStore
	CalculationStore
	Close() error
}

type StoredCalculation struct {
	api579.Calculation
	RecordedAt  time.Time `json:"recorded_at"`
	TriggeredBy string    `json:"triggered_by"`
}

type StoredRBI struct {
	rbi.Result
	RecordedAt  time.Time `json:"recorded_at"`
	TriggeredBy string    `json:"triggered_by"`
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}

func (c StoredCalculation) check() error {
	if c.ID == "" || c.RequestKey == "" {
		return errors.New("calculation id and request key are required")
	}
	if c.Inputs.EquipmentID == "" {
		return errors.New("calculation has no equipment id")
	}
	return nil
}

func (r StoredRBI) check() error {
	if r.ID == "" || r.CalculationID == "" {
		return errors.New("rbi result id and calculation id are required")
	}
	return nil
}

// Open connects to the configured driver and makes sure the schema exists.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "":
		return OpenPostgres(ctx, dsn)
	case "sqlite", "sqlite3":
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
