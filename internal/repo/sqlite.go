package repo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/logging"
)

type userRow struct {
	ID        int       `gorm:"column:id;primaryKey;autoIncrement"`
	Login     string    `gorm:"column:login;type:text;not null;uniqueIndex"`
	Email     string    `gorm:"column:email;type:text;not null"`
	Password  string    `gorm:"column:password;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (userRow) TableName() string { return "users" }

type calculationRow struct {
	ID              string    `gorm:"column:id;type:text;primaryKey"`
	RequestKey      string    `gorm:"column:request_key;type:text;not null;uniqueIndex"`
	EquipmentID     string    `gorm:"column:equipment_id;type:text;not null;index:calculations_equipment_idx,priority:1"`
	Verdict         string    `gorm:"column:verdict;type:text;not null"`
	RSF             string    `gorm:"column:rsf;type:text;not null"`
	CalculationDate time.Time `gorm:"column:calculation_date;not null;index:calculations_equipment_idx,priority:2"`
	RecordedAt      time.Time `gorm:"column:recorded_at;not null"`
	TriggeredBy     string    `gorm:"column:triggered_by;type:text;not null;default:''"`
	Payload         string    `gorm:"column:payload;type:text;not null"`
}

func (calculationRow) TableName() string { return "calculations" }

type rbiRow struct {
	ID             string    `gorm:"column:id;type:text;primaryKey"`
	CalculationID  string    `gorm:"column:calculation_id;type:text;not null;index"`
	EquipmentID    string    `gorm:"column:equipment_id;type:text;not null"`
	NextInspection time.Time `gorm:"column:next_inspection;not null"`
	RecordedAt     time.Time `gorm:"column:recorded_at;not null"`
	TriggeredBy    string    `gorm:"column:triggered_by;type:text;not null;default:''"`
	Payload        string    `gorm:"column:payload;type:text;not null"`
}

func (rbiRow) TableName() string { return "rbi_results" }

// SQLiteStore is the embedded store used by the CLI, the tests and single-node installs.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	logCtx := logging.WithAttrs(ctx, slog.String("component", "repo.sqlite"))

	if err := ensureSQLiteDirectory(dsn); err != nil {
		return nil, errs.Wrap(err, "ensure sqlite directory")
	}
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errs.Wrap(err, "open sqlite db")
	}
	s := NewSQLiteStore(db)
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	logging.Info(logCtx, "database opened", slog.String("driver", "sqlite"), slog.String("dsn", dsn))
	return s, nil
}

func ensureSQLiteDirectory(dsn string) error {
	candidate := strings.TrimSpace(dsn)
	if candidate == "" || candidate == ":memory:" {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(candidate), "file:") {
		candidate = candidate[len("file:"):]
	}
	if idx := strings.Index(candidate, "?"); idx >= 0 {
		candidate = candidate[:idx]
	}
	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}
	return errs.Wrapf(os.MkdirAll(dir, 0o755), "create sqlite directory %q", dir)
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &calculationRow{}, &rbiRow{}); err != nil {
		return errs.Wrap(err, "migrate sqlite schema")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, login, email, password string) (int, error) {
	row := userRow{Login: login, Email: email, Password: password, CreatedAt: time.Now().UTC()}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "login"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "insert user")
	}
	if result.RowsAffected == 0 {
		return 0, errs.Wrapf(ErrDuplicate, "user %q", login)
	}
	return row.ID, nil
}

func (s *SQLiteStore) GetBylogin(ctx context.Context, login string) (int, string, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("login = ?", login).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", errs.Wrap(err, "query user")
	}
	return row.ID, row.Password, nil
}

func (r calculationRow) stored() (StoredCalculation, error) {
	out := StoredCalculation{RecordedAt: r.RecordedAt.UTC(), TriggeredBy: r.TriggeredBy}
	if err := json.Unmarshal([]byte(r.Payload), &out.Calculation); err != nil {
		return StoredCalculation{}, errs.Wrap(err, "decode calculation payload")
	}
	return out, nil
}

func (r rbiRow) stored() (StoredRBI, error) {
	out := StoredRBI{RecordedAt: r.RecordedAt.UTC(), TriggeredBy: r.TriggeredBy}
	if err := json.Unmarshal([]byte(r.Payload), &out.Result); err != nil {
		return StoredRBI{}, errs.Wrap(err, "decode rbi payload")
	}
	return out, nil
}

func (s *SQLiteStore) SaveCalculation(ctx context.Context, c StoredCalculation, results ...StoredRBI) (StoredCalculation, error) {
	if err := c.check(); err != nil {
		return StoredCalculation{}, err
	}
	c.RecordedAt = stamp(c.RecordedAt)
	payload, err := json.Marshal(c.Calculation)
	if err != nil {
		return StoredCalculation{}, errs.Wrap(err, "encode calculation payload")
	}
	row := calculationRow{
		ID:              c.ID,
		RequestKey:      c.RequestKey,
		EquipmentID:     c.Inputs.EquipmentID,
		Verdict:         string(c.Verdict),
		RSF:             c.RSF.String(),
		CalculationDate: c.CalculationDate.UTC(),
		RecordedAt:      c.RecordedAt,
		TriggeredBy:     c.TriggeredBy,
		Payload:         string(payload),
	}

	var stored StoredCalculation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return errs.Wrap(err, "insert calculation")
		}
		var existing calculationRow
		if err := tx.Where("request_key = ?", c.RequestKey).Take(&existing).Error; err != nil {
			return errs.Wrap(err, "reload calculation")
		}
		var err error
		if stored, err = existing.stored(); err != nil {
			return err
		}
		for _, r := range results {
			if _, err := insertRBIRow(tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return StoredCalculation{}, err
	}
	return stored, nil
}

func (s *SQLiteStore) GetCalculation(ctx context.Context, id string) (StoredCalculation, error) {
	var row calculationRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StoredCalculation{}, ErrNotFound
	}
	if err != nil {
		return StoredCalculation{}, errs.Wrap(err, "query calculation")
	}
	return row.stored()
}

func (s *SQLiteStore) ListCalculations(ctx context.Context, equipmentID string) ([]StoredCalculation, error) {
	var rows []calculationRow
	if err := s.db.WithContext(ctx).
		Where("equipment_id = ?", equipmentID).
		Order("calculation_date").Order("recorded_at").Order("id").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query calculations")
	}
	out := make([]StoredCalculation, 0, len(rows))
	for _, row := range rows {
		c, err := row.stored()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func insertRBIRow(tx *gorm.DB, r StoredRBI) (StoredRBI, error) {
	if err := r.check(); err != nil {
		return StoredRBI{}, err
	}
	r.RecordedAt = stamp(r.RecordedAt)
	payload, err := json.Marshal(r.Result)
	if err != nil {
		return StoredRBI{}, errs.Wrap(err, "encode rbi payload")
	}
	row := rbiRow{
		ID:             r.ID,
		CalculationID:  r.CalculationID,
		EquipmentID:    r.EquipmentID,
		NextInspection: r.NextInspection.UTC(),
		RecordedAt:     r.RecordedAt,
		TriggeredBy:    r.TriggeredBy,
		Payload:        string(payload),
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return StoredRBI{}, errs.Wrap(err, "insert rbi result")
	}
	var existing rbiRow
	if err := tx.Where("id = ?", r.ID).Take(&existing).Error; err != nil {
		return StoredRBI{}, errs.Wrap(err, "reload rbi result")
	}
	return existing.stored()
}

func (s *SQLiteStore) SaveRBI(ctx context.Context, r StoredRBI) (StoredRBI, error) {
	var stored StoredRBI
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&calculationRow{}).Where("id = ?", r.CalculationID).Count(&count).Error; err != nil {
			return errs.Wrap(err, "check calculation")
		}
		if count == 0 {
			return errs.Wrapf(ErrNotFound, "calculation %q", r.CalculationID)
		}
		var err error
		stored, err = insertRBIRow(tx, r)
		return err
	})
	if err != nil {
		return StoredRBI{}, err
	}
	return stored, nil
}

func (s *SQLiteStore) ListRBI(ctx context.Context, calculationID string) ([]StoredRBI, error) {
	var rows []rbiRow
	if err := s.db.WithContext(ctx).
		Where("calculation_id = ?", calculationID).
		Order("recorded_at").Order("id").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query rbi results")
	}
	out := make([]StoredRBI, 0, len(rows))
	for _, row := range rows {
		r, err := row.stored()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
