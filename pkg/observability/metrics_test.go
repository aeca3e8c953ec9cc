package observability

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	t.Run("NewMetrics", func(t *testing.T) {
		if m == nil {
			t.Fatal("NewMetrics returned nil")
		}
		if m.RequestsTotal == nil {
			t.Error("RequestsTotal not initialized")
		}
		if m.RequestDuration == nil {
			t.Error("RequestDuration not initialized")
		}
		if m.IndexMemoryBytes == nil {
			t.Error("IndexMemoryBytes not initialized")
		}
		if m.PlanDecisions == nil {
			t.Error("PlanDecisions not initialized")
		}
	})

	t.Run("RecordRequest", func(t *testing.T) {
		duration := 100 * time.Millisecond
		m.RecordRequest("CreateIndex", "success", duration)
		m.RecordRequest("DropIndex", "error", 50*time.Millisecond)

		methods := []string{"CreateIndex", "DropIndex", "Enumerate", "Stats"}
		statuses := []string{"success", "error", "timeout"}
		for _, method := range methods {
			for _, status := range statuses {
				m.RecordRequest(method, status, duration)
			}
		}
	})

	t.Run("RecordError", func(t *testing.T) {
		m.RecordError("CreateIndex", "validation")
		m.RecordError("DropIndex", "missing")
		m.RecordError("Enumerate", "timeout")
	})

	t.Run("IndexRegistryGauges", func(t *testing.T) {
		m.SetIndexesTotal(3)
		m.UpdateIndexMemory("docs", "embedding", 1024*1024*100)
		m.UpdateIndexMemory("products", "embedding", 1024*1024*10)
		m.SetIndexState("docs", "embedding", "ready",
			[]string{"unloaded", "loading", "ready", "evicted"})
	})

	t.Run("RecordSearch", func(t *testing.T) {
		m.RecordSearch("docs", "embedding", 50*time.Millisecond)
		m.RecordSearch("docs", "embedding", 10*time.Millisecond)
		m.RecordSearch("products", "embedding", 5*time.Millisecond)
	})

	t.Run("RecordPlanDecision", func(t *testing.T) {
		for _, kind := range []string{"index_probe", "filter_then_rank", "decline"} {
			m.RecordPlanDecision(kind)
		}
	})

	t.Run("RecordEviction", func(t *testing.T) {
		m.RecordEviction("docs", "embedding")
		m.RecordEviction("products", "embedding")
	})

	t.Run("RecordAdmissionRejection", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			m.RecordAdmissionRejection()
		}
	})

	t.Run("RecordRestoreFailure", func(t *testing.T) {
		m.RecordRestoreFailure("docs", "embedding")
	})

	t.Run("UpdateSystemMetrics", func(t *testing.T) {
		m.UpdateGoroutineCount(100)
		m.UpdateMemoryUsage(1024 * 1024 * 512)

		for i := 0; i < 10; i++ {
			m.UpdateGoroutineCount(100 + i*10)
			m.UpdateMemoryUsage(uint64(1024 * 1024 * (500 + i*100)))
		}
	})
}

func TestConcurrentMetricUpdates(t *testing.T) {
	m := NewMetrics()
	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 10; j++ {
				m.RecordSearch("docs", "embedding", time.Millisecond)
				m.UpdateIndexMemory("docs", "embedding", int64(n*j))
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func BenchmarkRecordRequest(b *testing.B) {
	b.Skip("Skipping benchmark due to global metric registry conflicts")
}

func BenchmarkRecordSearch(b *testing.B) {
	b.Skip("Skipping benchmark due to global metric registry conflicts")
}

func BenchmarkConcurrentMetricUpdates(b *testing.B) {
	b.Skip("Skipping benchmark due to global metric registry conflicts")
}
