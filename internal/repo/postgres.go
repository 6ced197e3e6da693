package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/logging"
)

const uniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		login TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		password TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS calculations (
		id TEXT PRIMARY KEY,
		request_key TEXT NOT NULL UNIQUE,
		equipment_id TEXT NOT NULL,
		verdict TEXT NOT NULL,
		rsf NUMERIC NOT NULL,
		calculation_date TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		triggered_by TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS calculations_equipment_idx ON calculations (equipment_id, calculation_date)`,
	`CREATE TABLE IF NOT EXISTS rbi_results (
		id TEXT PRIMARY KEY,
		calculation_id TEXT NOT NULL REFERENCES calculations (id),
		equipment_id TEXT NOT NULL,
		next_inspection TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		triggered_by TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS rbi_results_calculation_idx ON rbi_results (calculation_id)`,
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a pooled connection, requiring TLS unless the DSN says otherwise.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "repo.postgres"))

	connStr := strings.TrimSpace(dsn)
	if connStr == "" {
		connStr = "user=postgres dbname=postgres password=password sslmode=disable"
	}
	if !strings.Contains(connStr, "sslmode=") {
		if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
			sep := "?"
			if strings.Contains(connStr, "?") {
				sep = "&"
			}
			connStr = connStr + sep + "sslmode=require"
		} else {
			connStr = connStr + " sslmode=require"
		}
	}
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errs.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Wrap(err, "ping postgres")
	}
	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logging.Info(logCtx, "database opened", slog.String("driver", "postgres"))
	return s, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errs.Wrap(err, "create postgres schema")
		}
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) CreateUser(ctx context.Context, login, email, password string) (int, error) {
	var id int
	query := "INSERT INTO users (login, email, password) VALUES ($1, $2, $3) RETURNING id"
	err := s.db.QueryRowContext(ctx, query, login, email, password).Scan(&id)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return 0, errs.Wrapf(ErrDuplicate, "user %q", login)
	}
	if err != nil {
		return 0, errs.Wrap(err, "insert user")
	}
	return id, nil
}

func (s *PostgresStore) GetBylogin(ctx context.Context, login string) (int, string, error) {
	var id int
	var hash string

	query := "SELECT id, password FROM users WHERE login=$1"

	err := s.db.QueryRowContext(ctx, query, login).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", nil
		}
		return 0, "", errs.Wrap(err, "query user")
	}
	return id, hash, nil
}

const selectCalculation = "SELECT payload, recorded_at, triggered_by FROM calculations"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalculation(row rowScanner) (StoredCalculation, error) {
	var (
		payload []byte
		out     StoredCalculation
	)
	if err := row.Scan(&payload, &out.RecordedAt, &out.TriggeredBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredCalculation{}, ErrNotFound
		}
		return StoredCalculation{}, errs.Wrap(err, "scan calculation")
	}
	if err := json.Unmarshal(payload, &out.Calculation); err != nil {
		return StoredCalculation{}, errs.Wrap(err, "decode calculation payload")
	}
	out.RecordedAt = out.RecordedAt.UTC()
	return out, nil
}

func (s *PostgresStore) SaveCalculation(ctx context.Context, c StoredCalculation, results ...StoredRBI) (StoredCalculation, error) {
	if err := c.check(); err != nil {
		return StoredCalculation{}, err
	}
	c.RecordedAt = stamp(c.RecordedAt)
	payload, err := json.Marshal(c.Calculation)
	if err != nil {
		return StoredCalculation{}, errs.Wrap(err, "encode calculation payload")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoredCalculation{}, errs.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO calculations
		(id, request_key, equipment_id, verdict, rsf, calculation_date, recorded_at, triggered_by, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`,
		c.ID, c.RequestKey, c.Inputs.EquipmentID, string(c.Verdict), c.RSF.String(),
		c.CalculationDate, c.RecordedAt, c.TriggeredBy, payload)
	if err != nil {
		return StoredCalculation{}, errs.Wrap(err, "insert calculation")
	}
	stored, err := scanCalculation(tx.QueryRowContext(ctx, selectCalculation+" WHERE request_key = $1", c.RequestKey))
	if err != nil {
		return StoredCalculation{}, err
	}
	for _, r := range results {
		if _, err := insertRBI(ctx, tx, r); err != nil {
			return StoredCalculation{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return StoredCalculation{}, errs.Wrap(err, "commit calculation")
	}
	return stored, nil
}

func (s *PostgresStore) GetCalculation(ctx context.Context, id string) (StoredCalculation, error) {
	return scanCalculation(s.db.QueryRowContext(ctx, selectCalculation+" WHERE id = $1", id))
}

func (s *PostgresStore) ListCalculations(ctx context.Context, equipmentID string) ([]StoredCalculation, error) {
	rows, err := s.db.QueryContext(ctx, selectCalculation+" WHERE equipment_id = $1 ORDER BY calculation_date, recorded_at, id", equipmentID)
	if err != nil {
		return nil, errs.Wrap(err, "query calculations")
	}
	defer rows.Close()

	var out []StoredCalculation
	for rows.Next() {
		c, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, errs.Wrap(rows.Err(), "iterate calculations")
}

const selectRBI = "SELECT payload, recorded_at, triggered_by FROM rbi_results"

func scanRBI(row rowScanner) (StoredRBI, error) {
	var (
		payload []byte
		out     StoredRBI
	)
	if err := row.Scan(&payload, &out.RecordedAt, &out.TriggeredBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredRBI{}, ErrNotFound
		}
		return StoredRBI{}, errs.Wrap(err, "scan rbi result")
	}
	if err := json.Unmarshal(payload, &out.Result); err != nil {
		return StoredRBI{}, errs.Wrap(err, "decode rbi payload")
	}
	out.RecordedAt = out.RecordedAt.UTC()
	return out, nil
}

func insertRBI(ctx context.Context, tx *sql.Tx, r StoredRBI) (StoredRBI, error) {
	if err := r.check(); err != nil {
		return StoredRBI{}, err
	}
	r.RecordedAt = stamp(r.RecordedAt)
	payload, err := json.Marshal(r.Result)
	if err != nil {
		return StoredRBI{}, errs.Wrap(err, "encode rbi payload")
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO rbi_results
		(id, calculation_id, equipment_id, next_inspection, recorded_at, triggered_by, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.CalculationID, r.EquipmentID, r.NextInspection, r.RecordedAt, r.TriggeredBy, payload)
	if err != nil {
		return StoredRBI{}, errs.Wrap(err, "insert rbi result")
	}
	return scanRBI(tx.QueryRowContext(ctx, selectRBI+" WHERE id = $1", r.ID))
}

func (s *PostgresStore) SaveRBI(ctx context.Context, r StoredRBI) (StoredRBI, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StoredRBI{}, errs.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	stored, err := insertRBI(ctx, tx, r)
	if err != nil {
		return StoredRBI{}, err
	}
	if err := tx.Commit(); err != nil {
		return StoredRBI{}, errs.Wrap(err, "commit rbi result")
	}
	return stored, nil
}

func (s *PostgresStore) ListRBI(ctx context.Context, calculationID string) ([]StoredRBI, error) {
	rows, err := s.db.QueryContext(ctx, selectRBI+" WHERE calculation_id = $1 ORDER BY recorded_at, id", calculationID)
	if err != nil {
		return nil, errs.Wrap(err, "query rbi results")
	}
	defer rows.Close()

	var out []StoredRBI
	for rows.Next() {
		r, err := scanRBI(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, errs.Wrap(rows.Err(), "iterate rbi results")
}
