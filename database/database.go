package database

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	config "github.com/anjiri1684/tutor_marketplace/configs"
	"github.com/anjiri1684/tutor_marketplace/models"
)

// Connect opens the configured database. SQLite runs on a single connection
// so in-memory databases survive and writers never contend.
func Connect(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	level := gormlogger.Warn
	if cfg.Silent {
		level = gormlogger.Silent
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
		Logger:                                   newGormLogger(logger, level),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Info("database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

// gormWriter sends gorm's log lines to zap at warn level.
type gormWriter struct {
	logger *zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn(strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", " "))
}

func newGormLogger(logger *zap.Logger, level gormlogger.LogLevel) gormlogger.Interface {
	return gormlogger.New(gormWriter{logger: logger.Named("gorm").Sugar()}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.LedgerEntry{},
		&models.Teacher{},
		&models.AvailabilitySlot{},
		&models.Booking{},
		&models.LessonRecord{},
		&models.PayoutRequest{},
		&models.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_live_slot ON bookings (teacher_id, slot_start) WHERE status <> 'cancelled'`,
	}
	switch db.Dialector.Name() {
	case "postgres":
		statements = append(statements,
			`CREATE OR REPLACE FUNCTION ledger_entries_append_only() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'ledger_entries is append-only';
END;
$$ LANGUAGE plpgsql`,
			`DROP TRIGGER IF EXISTS ledger_entries_append_only ON ledger_entries`,
			`CREATE TRIGGER ledger_entries_append_only BEFORE UPDATE OR DELETE ON ledger_entries FOR EACH ROW EXECUTE FUNCTION ledger_entries_append_only()`,
		)
	case "sqlite":
		statements = append(statements,
			`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update BEFORE UPDATE ON ledger_entries BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END`,
			`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete BEFORE DELETE ON ledger_entries BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END`,
		)
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
	}
	return nil
}
