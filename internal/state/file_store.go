package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// FileStore persists the date-keyed record map as a single JSON file.
// Writes go to a temp file in the same directory followed by an atomic
// rename, so a crash mid-write never corrupts the previous state.
type FileStore struct {
	path string
	log  zerolog.Logger
}

// NewFileStore creates a file-backed store at the given path. The parent
// directory is created if needed.
func NewFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{
		path: path,
		log:  log.With().Str("component", "state_file").Logger(),
	}, nil
}

// readAll loads the full record map. Unreadable or corrupted files yield
// an empty map: safe defaults beat a startup failure.
func (s *FileStore) readAll() map[string]DailyRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("State file unreadable, using defaults")
		}
		return map[string]DailyRecord{}
	}

	records := map[string]DailyRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("State file corrupted, using defaults")
		return map[string]DailyRecord{}
	}
	return records
}

// Load returns the record for a date, or zero defaults.
func (s *FileStore) Load(date string) (DailyRecord, error) {
	return s.readAll()[date], nil
}

// LoadWeek returns the retention window ending at end, oldest first.
func (s *FileStore) LoadWeek(end time.Time) ([]DailyRecord, error) {
	records := s.readAll()
	week := make([]DailyRecord, 0, RetentionDays)
	for _, date := range WindowDates(end) {
		week = append(week, records[date])
	}
	return week, nil
}

// Save stores the record, prunes entries older than the retention window
// and atomically replaces the state file.
func (s *FileStore) Save(date string, rec DailyRecord) error {
	records := s.readAll()
	records[date] = rec

	saveDay, err := time.Parse(DateFormat, date)
	if err != nil {
		return fmt.Errorf("invalid state date %q: %w", date, err)
	}
	cutoff := saveDay.AddDate(0, 0, -(RetentionDays - 1))
	for key := range records {
		day, err := time.Parse(DateFormat, key)
		if err != nil || day.Before(cutoff) {
			delete(records, key)
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
