// Package store persists analysis results and export history in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/satindergrewal/loopatron/internal/export"
)

const DefaultDBFile = "loopatron.sqlite3"

var errDBClosed = errors.New("store is closed")

// Store wraps the SQLite database.
type Store struct {
	DB *gorm.DB
	db *sql.DB
}

// Analysis caches one engine result, keyed by file content and options.
type Analysis struct {
	CacheKey  string `gorm:"primaryKey;type:varchar(80)"`
	Filename  string `gorm:"index:idx_analysis_filename"`
	Data      []byte
	CreatedAt time.Time
}

// Export is one loop written for the converter.
type Export struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LoopStart      int64     `json:"loop_start"`
	LoopEnd        int64     `json:"loop_end"`
	SourceFilename string    `gorm:"index:idx_export_source" json:"source_filename"`
	Token          string    `json:"token"`
	CreatedAt      time.Time `json:"created_at"`
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Analysis{}, &Export{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{DB: db, db: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetAnalysis returns cached engine output for key.
func (s *Store) GetAnalysis(key string) ([]byte, bool, error) {
	if s == nil || s.DB == nil {
		return nil, false, errDBClosed
	}
	var row Analysis
	err := s.DB.Where("cache_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying analysis: %w", err)
	}
	return row.Data, true, nil
}

// PutAnalysis stores engine output for key, replacing any earlier entry.
func (s *Store) PutAnalysis(key, filename string, data []byte) error {
	if s == nil || s.DB == nil {
		return errDBClosed
	}
	row := Analysis{CacheKey: key, Filename: filename, Data: data}
	err := s.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("storing analysis: %w", err)
	}
	return nil
}

// RecordExport appends an export to the history.
func (s *Store) RecordExport(rec export.Record, token string) error {
	if s == nil || s.DB == nil {
		return errDBClosed
	}
	row := Export{
		ID:             uuid.NewString(),
		LoopStart:      rec.LoopStart,
		LoopEnd:        rec.LoopEnd,
		SourceFilename: rec.SourceFilename,
		Token:          token,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("recording export: %w", err)
	}
	return nil
}

// Exports returns the most recent exports, newest first.
func (s *Store) Exports(limit int) ([]Export, error) {
	if s == nil || s.DB == nil {
		return nil, errDBClosed
	}
	var rows []Export
	q := s.DB.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing exports: %w", err)
	}
	return rows, nil
}
