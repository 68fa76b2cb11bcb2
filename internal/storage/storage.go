// Package storage keeps a local history of plan, render and edit runs in
// SQLite.
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("job not found")

// Job is one recorded run.
type Job struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	Command     string    `gorm:"size:16" json:"command"`
	Input       string    `json:"input"`
	Output      string    `json:"output,omitempty"`
	RunDir      string    `json:"run_dir,omitempty"`
	Status      string    `gorm:"size:32;index" json:"status"`
	Error       string    `json:"error,omitempty"`
	Preset      string    `gorm:"size:32" json:"preset,omitempty"`
	OriginalSec float64   `json:"original_sec"`
	EditedSec   float64   `json:"edited_sec"`
	Segments    int       `json:"segments"`
	Reencoded   int       `json:"reencoded"`
	Warnings    int       `json:"warnings"`
	ElapsedMS   int64     `json:"elapsed_ms"`
}

type Store struct {
	db *gorm.DB
}

// Open creates the database file and its directory when missing and
// migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Job{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveJob inserts j, assigning an ID and timestamp when unset.
func (s *Store) SaveJob(ctx context.Context, j *Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(j).Error
}

// ListJobs returns the newest jobs first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []Job
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	var j Job
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Job{}, ErrNotFound
	}
	return j, err
}
