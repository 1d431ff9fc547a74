package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lifestory/internal/config"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const backupPrefix = "timeline_"

// BackupService snapshots the timeline database on a schedule and prunes
// snapshots older than the retention window.
type BackupService struct {
	dbPath string
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		dbPath: dbPath,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Interval parses the schedule, falling back to daily backups.
func (s *BackupService) Interval() time.Duration {
	if s.config.Schedule == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(s.config.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("invalid backup schedule, using 24h")
		return 24 * time.Hour
	}
	return d
}

// RunOnce performs a backup and prunes expired ones. It is meant to be run
// by a scheduler.
func (s *BackupService) RunOnce(ctx context.Context) {
	if !s.config.Enabled {
		return
	}
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("backup failed")
	}
	s.CleanupOldBackups()
}

// PerformBackup writes a consistent copy of the database and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupPath := filepath.Join(s.config.StoragePath, backupPrefix+s.now().Format("20060102_150405")+".db")
	s.logger.Info().Str("path", backupPath).Msg("performing database backup")

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	quoted := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, falling back to file copy")
		if err := s.copyFile(backupPath); err != nil {
			return "", err
		}
	}
	return backupPath, nil
}

func (s *BackupService) copyFile(backupPath string) error {
	source, err := os.Open(s.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer destination.Close()

	// Not atomic if the source is written concurrently.
	_, err = io.Copy(destination, source)
	return err
}

// CleanupOldBackups removes backup files older than RetentionDays. Other
// files in the directory are left alone.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", file.Name()).Msg("failed to delete old backup")
			continue
		}
		s.logger.Info().Str("file", file.Name()).Msg("deleted old backup")
		removed++
	}
	return removed
}
