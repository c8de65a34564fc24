package stats

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStorage(t *testing.T) {
	// Create temporary directory for test
	tempDir, err := os.MkdirTemp("", "stats-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	// Create new storage
	storage, err := NewStorage(tempDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Shutdown()

	// Test incrementing stats
	t.Run("IncrementStats", func(t *testing.T) {
		storage.IncrementStats(MonthlyStats{Analyses: 1, AnalysisFailures: 2, FixesSuggested: 3, FixesApplied: 4})
		stats := storage.GetCurrentStats()

		if stats.Analyses != 1 {
			t.Errorf("Expected 1 analysis, got %d", stats.Analyses)
		}
		if stats.AnalysisFailures != 2 {
			t.Errorf("Expected 2 analysis failures, got %d", stats.AnalysisFailures)
		}
		if stats.FixesSuggested != 3 {
			t.Errorf("Expected 3 fixes suggested, got %d", stats.FixesSuggested)
		}
		if stats.FixesApplied != 4 {
			t.Errorf("Expected 4 fixes applied, got %d", stats.FixesApplied)
		}
	})

	t.Run("Record", func(t *testing.T) {
		before := storage.GetCurrentStats()
		storage.Record(FixAbandoned)
		storage.Record(FixAbandoned)
		storage.Record(AnalysisCompleted)
		after := storage.GetCurrentStats()

		if after.FixesAbandoned-before.FixesAbandoned != 2 {
			t.Errorf("Expected 2 more abandoned fixes, got %d", after.FixesAbandoned-before.FixesAbandoned)
		}
		if after.Analyses-before.Analyses != 1 {
			t.Errorf("Expected 1 more analysis, got %d", after.Analyses-before.Analyses)
		}
	})

	// Test persistence
	t.Run("Persistence", func(t *testing.T) {
		if err := storage.save(); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}

		// Create new storage instance pointing to same directory
		storage2, err := NewStorage(tempDir)
		if err != nil {
			t.Fatalf("Failed to create second storage: %v", err)
		}
		defer storage2.Shutdown()

		stats := storage2.GetCurrentStats()
		if stats.Analyses != 2 {
			t.Errorf("Expected 2 analyses after reload, got %d", stats.Analyses)
		}
	})

	// Test cleanup
	t.Run("Cleanup", func(t *testing.T) {
		now := time.Now()
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		previousMonth := firstOfMonth.AddDate(0, -1, 0).Format("2006-01")
		oldMonth := firstOfMonth.AddDate(0, -2, 0).Format("2006-01")

		storage.mutex.Lock()
		storage.stats[previousMonth] = &MonthlyStats{Analyses: 50}
		storage.stats[oldMonth] = &MonthlyStats{Analyses: 100}
		storage.mutex.Unlock()

		// Run cleanup keeping only 1 month of data
		storage.Cleanup(1)

		if _, exists := storage.GetMonthlyStats(oldMonth); exists {
			t.Error("Old stats should have been cleaned up")
		}
		if _, exists := storage.GetMonthlyStats(previousMonth); !exists {
			t.Error("Previous month should have been retained")
		}
		if _, exists := storage.GetMonthlyStats(getCurrentMonth()); !exists {
			t.Error("Current month should have been retained")
		}

		months := storage.GetAllMonths()
		if len(months) != 2 || months[0] != getCurrentMonth() {
			t.Errorf("Expected current month first of 2, got %v", months)
		}
	})

	// Test file size
	t.Run("FileSize", func(t *testing.T) {
		if err := storage.save(); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}

		// Check file size
		info, err := os.Stat(filepath.Join(tempDir, "stats.json"))
		if err != nil {
			t.Fatalf("Failed to stat file: %v", err)
		}

		// File should be relatively small (< 1KB for this test data)
		if info.Size() > 1024 {
			t.Errorf("File size too large: %d bytes", info.Size())
		}
	})

	// Test concurrent access
	t.Run("ConcurrentAccess", func(t *testing.T) {
		before := storage.GetCurrentStats()

		done := make(chan bool)
		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					storage.Record(FixSuggested)
					storage.Record(FixApplied)
					storage.GetCurrentStats()
				}
				done <- true
			}()
		}

		// Wait for all goroutines to complete
		for i := 0; i < 10; i++ {
			<-done
		}

		// Verify final counts
		stats := storage.GetCurrentStats()
		expectedCount := 1000 // 10 goroutines * 100 iterations
		total := (stats.FixesSuggested - before.FixesSuggested) + (stats.FixesApplied - before.FixesApplied)
		if total != expectedCount*2 {
			t.Errorf("Expected %d total fixes, got %d", expectedCount*2, total)
		}
	})
}

func TestShutdownSaves(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewStorage(dir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	storage.Record(AnalysisFailed)

	if err := storage.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	// Second call is a no-op apart from the save
	if err := storage.Shutdown(); err != nil {
		t.Fatalf("Second shutdown failed: %v", err)
	}

	reloaded, err := NewStorage(dir)
	if err != nil {
		t.Fatalf("Failed to reload storage: %v", err)
	}
	defer reloaded.Shutdown()
	if got := reloaded.GetCurrentStats().AnalysisFailures; got != 1 {
		t.Errorf("Expected 1 analysis failure after reload, got %d", got)
	}
}
