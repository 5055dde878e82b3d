package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/council-go/internal/models"
)

func TestRecordGeneration(t *testing.T) {
	c := NewCollector()

	c.RecordGeneration(models.StageDrafts, "model-a", 100*time.Millisecond, 50, 200)
	c.RecordGeneration(models.StageDrafts, "model-b", 300*time.Millisecond, 70, 400)
	c.RecordGeneration(models.StageSynthesis, "model-a", 200*time.Millisecond, 500, 800)

	snap := c.Snapshot()

	if snap.Drafts == nil {
		t.Fatal("drafts snapshot missing")
	}
	if snap.Drafts.Count != 2 {
		t.Errorf("drafts count = %d, want 2", snap.Drafts.Count)
	}
	if snap.Drafts.TotalInputTokens != 120 || snap.Drafts.TotalOutputTokens != 600 {
		t.Errorf("drafts tokens = %d/%d, want 120/600", snap.Drafts.TotalInputTokens, snap.Drafts.TotalOutputTokens)
	}
	if snap.Drafts.MinTimeMs != 100 || snap.Drafts.MaxTimeMs != 300 {
		t.Errorf("drafts time range = %d..%d, want 100..300", snap.Drafts.MinTimeMs, snap.Drafts.MaxTimeMs)
	}
	if snap.Drafts.MinInputTokens != 50 || snap.Drafts.MaxInputTokens != 70 {
		t.Errorf("drafts input token range = %d..%d, want 50..70", snap.Drafts.MinInputTokens, snap.Drafts.MaxInputTokens)
	}

	if snap.Critiques != nil {
		t.Error("critiques snapshot should be nil with no data")
	}
	if snap.Synthesis == nil || snap.Synthesis.Count != 1 {
		t.Errorf("synthesis snapshot = %+v", snap.Synthesis)
	}

	// Per-model attribution spans stages.
	modelA := snap.Models["model-a"]
	if modelA == nil || modelA.Count != 2 {
		t.Fatalf("model-a snapshot = %+v, want count 2", modelA)
	}
	if modelA.TotalOutputTokens != 1000 {
		t.Errorf("model-a output tokens = %d, want 1000", modelA.TotalOutputTokens)
	}
	if _, ok := snap.Models["model-c"]; ok {
		t.Error("model-c should not appear")
	}
}

func TestEmptySnapshot(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()

	if snap.Drafts != nil || snap.Critiques != nil || snap.Synthesis != nil {
		t.Error("empty collector should produce nil stage snapshots")
	}
	if len(snap.Models) != 0 {
		t.Errorf("models = %v, want empty", snap.Models)
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordGeneration(models.StageCritiques, "model-a", time.Millisecond, 1, 2)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.Critiques == nil || snap.Critiques.Count != 1000 {
		t.Fatalf("critiques count = %+v, want 1000", snap.Critiques)
	}
	if snap.Critiques.TotalInputTokens != 1000 || snap.Critiques.TotalOutputTokens != 2000 {
		t.Errorf("tokens = %d/%d, want 1000/2000", snap.Critiques.TotalInputTokens, snap.Critiques.TotalOutputTokens)
	}
}
