package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// Setup installs the process-wide apex/log handler. format is text, json or cli.
func Setup(level, format string, w io.Writer) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch format {
	case "", "text":
		log.SetHandler(text.New(w))
	case "json":
		log.SetHandler(jsonhandler.New(w))
	case "cli":
		log.SetHandler(cli.New(w))
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	log.SetLevel(lvl)
	return nil
}

const statisticsFile = "statistics.json"

// Statistics represents the collected request statistics
type Statistics struct {
	UniqueVisitors   map[string]time.Time `json:"uniqueVisitors"`   // IP -> Last Visit Time
	AnalysisRequests int                  `json:"analysisRequests"` // Total number of analysis requests
	FixRequests      int                  `json:"fixRequests"`      // Total number of fix suggestions requested
	ErrorCount       int                  `json:"errorCount"`       // Number of failed analysis and fix requests
	IssueCategories  map[string]int       `json:"issueCategories"`  // Category -> Count
	AverageLoadTime  float64              `json:"averageLoadTime"`  // Average load time in milliseconds
	TotalLoadTime    float64              `json:"totalLoadTime"`
	RequestCount     int                  `json:"requestCount"`
	LastPersisted    time.Time            `json:"lastPersisted"` // Last time stats were saved

	mutex   sync.RWMutex
	path    string
	devMode bool
}

// NewStatistics creates statistics persisted under dataDir and loads any saved state.
// In dev mode GetStatistics also exposes the most reported issue categories.
func NewStatistics(dataDir string, devMode bool) *Statistics {
	s := &Statistics{
		UniqueVisitors:  make(map[string]time.Time),
		IssueCategories: make(map[string]int),
		LastPersisted:   time.Now(),
		path:            filepath.Join(dataDir, statisticsFile),
		devMode:         devMode,
	}

	if err := s.Load(); err != nil {
		log.WithError(err).Warn("Could not load existing statistics")
	}
	return s
}

// TrackVisitor records a unique visitor
func (s *Statistics) TrackVisitor(ip string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.UniqueVisitors[ip] = time.Now()
}

// TrackAnalysis records an analysis request
func (s *Statistics) TrackAnalysis(loadTime float64, hasError bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.AnalysisRequests++
	s.trackLoad(loadTime, hasError)
}

// TrackFix records a fix suggestion request
func (s *Statistics) TrackFix(loadTime float64, hasError bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.FixRequests++
	s.trackLoad(loadTime, hasError)
}

func (s *Statistics) trackLoad(loadTime float64, hasError bool) {
	if hasError {
		s.ErrorCount++
	}

	// Update average load time
	s.TotalLoadTime += loadTime
	s.RequestCount++
	s.AverageLoadTime = s.TotalLoadTime / float64(s.RequestCount)
}

// TrackIssueCategories counts the categories of the issues in one report
func (s *Statistics) TrackIssueCategories(categories []string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, c := range categories {
		s.IssueCategories[c]++
	}
}

// TotalRequests returns the number of tracked analysis and fix requests
func (s *Statistics) TotalRequests() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.RequestCount
}

// GetUniqueVisitorsCount returns the number of unique visitors in the last 24 hours
func (s *Statistics) GetUniqueVisitorsCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.uniqueVisitors()
}

func (s *Statistics) uniqueVisitors() int {
	count := 0
	cutoff := time.Now().Add(-24 * time.Hour)

	for _, lastVisit := range s.UniqueVisitors {
		if lastVisit.After(cutoff) {
			count++
		}
	}

	return count
}

// CategoryCount is one entry of the issue category ranking
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// GetTopIssueCategories returns the n most reported issue categories, most frequent first
func (s *Statistics) GetTopIssueCategories(n int) []CategoryCount {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.topIssueCategories(n)
}

func (s *Statistics) topIssueCategories(n int) []CategoryCount {
	result := make([]CategoryCount, 0, len(s.IssueCategories))
	for category, count := range s.IssueCategories {
		result = append(result, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Category < result[j].Category
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// GetErrorRate returns the error rate as a percentage
func (s *Statistics) GetErrorRate() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.errorRate()
}

func (s *Statistics) errorRate() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return (float64(s.ErrorCount) / float64(s.RequestCount)) * 100
}

// Save persists the statistics to a file
func (s *Statistics) Save() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.LastPersisted = time.Now()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("could not create statistics directory: %w", err)
	}

	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("could not create statistics file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("could not encode statistics: %w", err)
	}

	return nil
}

// Load reads the statistics from a file
func (s *Statistics) Load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Not an error if file doesn't exist yet
		}
		return fmt.Errorf("could not open statistics file: %w", err)
	}
	defer file.Close()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(s); err != nil {
		return fmt.Errorf("could not decode statistics: %w", err)
	}
	if s.UniqueVisitors == nil {
		s.UniqueVisitors = make(map[string]time.Time)
	}
	if s.IssueCategories == nil {
		s.IssueCategories = make(map[string]int)
	}

	return nil
}

// GetStatistics returns a summary of the current statistics. Issue categories are
// only included in development mode.
func (s *Statistics) GetStatistics() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := map[string]interface{}{
		"uniqueVisitors24h": s.uniqueVisitors(),
		"analysisRequests":  s.AnalysisRequests,
		"fixRequests":       s.FixRequests,
		"totalRequests":     s.RequestCount,
		"errorRate":         s.errorRate(),
		"averageLoadTime":   s.AverageLoadTime,
	}
	if s.devMode {
		result["topIssueCategories"] = s.topIssueCategories(5)
	}
	return result
}
