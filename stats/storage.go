package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
)

// Event is a countable pipeline outcome
type Event int

const (
	AnalysisCompleted Event = iota
	AnalysisFailed
	FixSuggested
	FixApplied
	FixAbandoned
)

// MonthlyStats represents statistics for a specific month
type MonthlyStats struct {
	Analyses         int       `json:"analyses"`
	AnalysisFailures int       `json:"analysis_failures"`
	FixesSuggested   int       `json:"fixes_suggested"`
	FixesApplied     int       `json:"fixes_applied"`
	FixesAbandoned   int       `json:"fixes_abandoned"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Storage handles persistent storage of statistics
type Storage struct {
	mutex       sync.RWMutex
	saveMu      sync.Mutex               // serializes writers of the temp file
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	done        chan struct{}
	stopped     chan struct{}
	closeOnce   sync.Once
}

// NewStorage creates a new statistics storage instance
func NewStorage(dataDir string) (*Storage, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	filePath := filepath.Join(dataDir, "stats.json")
	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filePath,
		writeBuffer: make(chan struct{}, 1), // Buffer for write requests
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	// Load existing stats if file exists
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	// Start background writer
	go s.backgroundWriter()

	return s, nil
}

// load reads statistics from file
func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return json.Unmarshal(data, &s.stats)
}

// save writes statistics to file
func (s *Storage) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
	s.mutex.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// Write to temporary file first
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	// Rename temporary file to actual file (atomic operation)
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile) // Clean up temp file if rename fails
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// backgroundWriter handles periodic writes to disk
func (s *Storage) backgroundWriter() {
	defer close(s.stopped)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
			// Immediate write requested
			s.saveAndLog()
		case <-ticker.C:
			// Periodic write
			s.saveAndLog()
		case <-s.done:
			return
		}
	}
}

func (s *Storage) saveAndLog() {
	if err := s.save(); err != nil {
		log.WithError(err).Warn("failed to persist usage stats")
	}
}

// getCurrentMonth returns the current month key in YYYY-MM format
func getCurrentMonth() string {
	return time.Now().Format("2006-01")
}

// requestWrite signals that a write to disk is needed
func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
		// Write requested
	default:
		// Buffer full, write already pending
	}
}

// Record increments the counter for a single event in the current month
func (s *Storage) Record(event Event) {
	switch event {
	case AnalysisCompleted:
		s.IncrementStats(MonthlyStats{Analyses: 1})
	case AnalysisFailed:
		s.IncrementStats(MonthlyStats{AnalysisFailures: 1})
	case FixSuggested:
		s.IncrementStats(MonthlyStats{FixesSuggested: 1})
	case FixApplied:
		s.IncrementStats(MonthlyStats{FixesApplied: 1})
	case FixAbandoned:
		s.IncrementStats(MonthlyStats{FixesAbandoned: 1})
	}
}

// IncrementStats adds delta's counters to the current month
func (s *Storage) IncrementStats(delta MonthlyStats) {
	month := getCurrentMonth()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats, exists := s.stats[month]
	if !exists {
		stats = &MonthlyStats{}
		s.stats[month] = stats
	}

	stats.Analyses += delta.Analyses
	stats.AnalysisFailures += delta.AnalysisFailures
	stats.FixesSuggested += delta.FixesSuggested
	stats.FixesApplied += delta.FixesApplied
	stats.FixesAbandoned += delta.FixesAbandoned
	stats.LastUpdated = time.Now()

	// Request a write if enough time has passed
	if time.Since(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = time.Now()
	}
}

// GetCurrentStats returns statistics for the current month
func (s *Storage) GetCurrentStats() MonthlyStats {
	month := getCurrentMonth()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[month]; exists {
		return *stats
	}
	return MonthlyStats{}
}

// Cleanup removes statistics older than the given number of months.
// The current month is always kept; retainMonths=1 keeps the current and previous month.
func (s *Storage) Cleanup(retainMonths int) {
	if retainMonths < 0 {
		retainMonths = 0
	}
	now := time.Now()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	oldest := firstOfMonth.AddDate(0, -retainMonths, 0).Format("2006-01")

	s.mutex.Lock()
	removed := 0
	for key := range s.stats {
		// YYYY-MM keys sort chronologically
		if key < oldest {
			delete(s.stats, key)
			removed++
		}
	}
	s.mutex.Unlock()

	// Request a write to persist changes
	s.requestWrite()

	log.WithFields(log.Fields{"oldest_month": oldest, "removed": removed}).Debug("usage stats cleanup")
}

// GetMonthlyStats returns statistics for a specific month
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[yearMonth]; exists {
		return *stats, true
	}
	return MonthlyStats{}, false
}

// GetAllMonths returns a sorted list of all months that have statistics
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}

	// Sort months in descending order (newest first)
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	return months
}

// Shutdown stops the background writer and saves the current statistics
func (s *Storage) Shutdown() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.stopped
	})
	return s.save()
}
