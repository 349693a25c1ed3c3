// Package store persists controller and light/fan preferences across
// restarts: tx_count/restart_count (so a restart doesn't reuse a counter
// value a paired device has already seen) and each light's min_brightness
// floor. Adapted from the teacher's pkg/database: the same gorm + pure-Go
// modernc.org/sqlite stack, WAL mode, and a gormLogAdapter bridging gorm's
// logger.Writer onto this repository's own Logger.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	bleadvlog "github.com/kbable/ble-adv-bridge/pkg/logger"
)

// Config configures the persisted preference store.
type Config struct {
	Path string
}

// Store wraps a gorm.DB over a modernc.org/sqlite (pure Go, no CGO)
// connection, auto-migrated for the two preference models below.
type Store struct {
	db  *gorm.DB
	log *bleadvlog.Logger
}

// gormLogAdapter routes gorm's internal log lines through this
// repository's structured logger instead of gorm's own stdlib logger.
type gormLogAdapter struct {
	log *bleadvlog.Logger
}

func (a gormLogAdapter) Printf(format string, args ...interface{}) {
	a.log.Debug(fmt.Sprintf(format, args...))
}

// New opens (creating if absent) the sqlite database at cfg.Path, enables
// WAL mode, and auto-migrates the preference models.
func New(cfg Config, log *bleadvlog.Logger) (*Store, error) {
	log = log.WithComponent("store")

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	gormLogger := logger.New(gormLogAdapter{log: log}, logger.Config{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      logger.Warn,
	})

	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: cfg.Path}, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	if err := db.AutoMigrate(&ControllerState{}, &LightPreference{}); err != nil {
		return nil, fmt.Errorf("store: auto migrate: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ControllerState persists one controller's rolling identity counters, so a
// process restart resumes tx_count/restart_count rather than reusing values
// an already-paired device has seen (spec.md section 3).
type ControllerState struct {
	Label        string `gorm:"primaryKey"`
	ID           uint32
	TxCount      uint8
	RestartCount uint8
	UpdatedAt    time.Time
}

// TableName pins the table name independent of gorm's pluralization.
func (ControllerState) TableName() string { return "controller_states" }

// LightPreference persists a light entity's min_brightness floor across
// restarts.
type LightPreference struct {
	EntityIndex   uint8 `gorm:"primaryKey"`
	MinBrightness float32
	UpdatedAt     time.Time
}

// TableName pins the table name independent of gorm's pluralization.
func (LightPreference) TableName() string { return "light_preferences" }

// SaveControllerState upserts a controller's rolling counters.
func (s *Store) SaveControllerState(ctx context.Context, state ControllerState) error {
	state.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Save(&state).Error
}

// LoadControllerState returns the persisted counters for label, or
// (ControllerState{}, false, nil) if none have been saved yet.
func (s *Store) LoadControllerState(ctx context.Context, label string) (ControllerState, bool, error) {
	var state ControllerState
	err := s.db.WithContext(ctx).First(&state, "label = ?", label).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ControllerState{}, false, nil
		}
		return ControllerState{}, false, err
	}
	return state, true, nil
}

// SaveLightPreference upserts a light's min_brightness floor.
func (s *Store) SaveLightPreference(ctx context.Context, pref LightPreference) error {
	pref.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Save(&pref).Error
}

// LoadLightPreference returns the persisted preference for index, or
// (LightPreference{}, false, nil) if none have been saved yet.
func (s *Store) LoadLightPreference(ctx context.Context, index uint8) (LightPreference, bool, error) {
	var pref LightPreference
	err := s.db.WithContext(ctx).First(&pref, "entity_index = ?", index).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return LightPreference{}, false, nil
		}
		return LightPreference{}, false, err
	}
	return pref, true, nil
}
