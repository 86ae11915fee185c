package metrics

import (
	"errors"
	"testing"
	"time"
)

// recordBackend captures every call for assertions.
type recordBackend struct {
	counters   []call
	histograms []call
	flushed    int
}

type call struct {
	name   string
	value  float64
	labels Labels
}

func (b *recordBackend) IncCounter(name string, delta float64, labels Labels) {
	b.counters = append(b.counters, call{name, delta, labels})
}

func (b *recordBackend) ObserveHistogram(name string, value float64, labels Labels) {
	b.histograms = append(b.histograms, call{name, value, labels})
}

func (b *recordBackend) Flush() error {
	b.flushed++
	return nil
}

// install swaps in a recording backend and restores the previous one after
// the test, since the backend is package-global.
func install(t *testing.T) *recordBackend {
	t.Helper()
	prev := backend
	b := &recordBackend{}
	SetBackend(b)
	t.Cleanup(func() { backend = prev })
	return b
}

func TestRecordStep(t *testing.T) {
	b := install(t)

	RecordStep("GEO", "discover", nil, 250*time.Millisecond)
	RecordStep("GEO", "transform", errors.New("boom"), time.Second)

	if len(b.counters) != 2 || len(b.histograms) != 2 {
		t.Fatalf("calls=%d/%d; want 2/2", len(b.counters), len(b.histograms))
	}
	if got := b.counters[0].labels["status"]; got != "success" {
		t.Errorf("status=%q; want success", got)
	}
	if got := b.counters[1].labels["status"]; got != "failure" {
		t.Errorf("status=%q; want failure", got)
	}
	if got := b.histograms[0].value; got != 0.25 {
		t.Errorf("duration=%v; want 0.25", got)
	}
	if got := b.counters[0].labels["step"]; got != "discover" {
		t.Errorf("step=%q; want discover", got)
	}
}

func TestRecordRows(t *testing.T) {
	b := install(t)

	RecordRows("GEO", "flushed", 42)
	RecordRows("GEO", "flushed", 0)  // no-op
	RecordRows("GEO", "flushed", -1) // no-op

	if len(b.counters) != 1 {
		t.Fatalf("calls=%d; want 1 (zero and negative deltas dropped)", len(b.counters))
	}
	c := b.counters[0]
	if c.name != "cohortnorm_rows_total" || c.value != 42 || c.labels["kind"] != "flushed" {
		t.Fatalf("call=%+v", c)
	}
}

func TestRecordArtifacts(t *testing.T) {
	b := install(t)

	RecordArtifacts("GEO", 3)
	if len(b.counters) != 1 || b.counters[0].name != "cohortnorm_artifacts_total" {
		t.Fatalf("calls=%+v", b.counters)
	}
}

func TestSetBackendNilKeepsCurrent(t *testing.T) {
	b := install(t)

	SetBackend(nil)
	RecordRows("GEO", "sampled", 1)
	if len(b.counters) != 1 {
		t.Fatal("SetBackend(nil) replaced the installed backend")
	}
}

func TestFlushDelegates(t *testing.T) {
	b := install(t)

	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if b.flushed != 1 {
		t.Fatalf("flushed=%d; want 1", b.flushed)
	}
}
