// Package config tests exercise the job configuration model: typed access
// through Options, defaulting via WithDefaults, and loading from disk.
package config

import (
	"os"
	"path/filepath"
	"testing"
)

/*
TestOptionsString verifies that Options.String returns:
 1. the string value when present and of the correct type,
 2. the provided default when the key is missing or not a string.
*/
func TestOptionsString(t *testing.T) {
	o := Options{
		"s": "ok",
		"n": 123,
	}

	tests := []struct {
		key string
		def string
		got string
	}{
		{"s", "zzz", "ok"},
		{"n", "def", "def"},
		{"missing", "fallback", "fallback"},
	}
	for _, tc := range tests {
		if got := o.String(tc.key, tc.def); got != tc.got {
			t.Fatalf("String(%q,%q)=%q; want %q", tc.key, tc.def, got, tc.got)
		}
	}
}

func TestOptionsBool(t *testing.T) {
	o := Options{
		"t": true,
		"f": false,
		"s": "not-bool",
	}

	tests := []struct {
		key string
		def bool
		got bool
	}{
		{"t", false, true},
		{"f", true, false},
		{"s", true, true},
		{"missing", false, false},
	}
	for _, tc := range tests {
		if got := o.Bool(tc.key, tc.def); got != tc.got {
			t.Fatalf("Bool(%q,%v)=%v; want %v", tc.key, tc.def, got, tc.got)
		}
	}
}

func TestOptionsInt(t *testing.T) {
	o := Options{
		"f": float64(3.9), // typical encoding/json number
		"i": 7,            // native int
		"s": "nope",
	}

	tests := []struct {
		key string
		def int
		got int
	}{
		{"f", -1, 3}, // int(3.9) == 3
		{"i", -1, 7},
		{"s", 42, 42},
		{"missing", 99, 99},
	}
	for _, tc := range tests {
		if got := o.Int(tc.key, tc.def); got != tc.got {
			t.Fatalf("Int(%q,%d)=%d; want %d", tc.key, tc.def, got, tc.got)
		}
	}
}

func TestOptionsRune(t *testing.T) {
	o := Options{
		"word":  "abc",
		"empty": "",
		"tab":   "\t",
	}

	tests := []struct {
		key string
		def rune
		got rune
	}{
		{"word", 'x', 'a'},
		{"empty", ',', ','},
		{"tab", ',', '\t'},
		{"missing", ';', ';'},
	}
	for _, tc := range tests {
		if got := o.Rune(tc.key, tc.def); got != tc.got {
			t.Fatalf("Rune(%q,%q)=%q; want %q", tc.key, tc.def, got, tc.got)
		}
	}
}

/*
TestWithDefaults verifies that every zero-valued knob is replaced by its
documented default, and that explicitly set values survive.
*/
func TestWithDefaults(t *testing.T) {
	j := Job{}.WithDefaults()

	if j.Name != "cohortnorm" {
		t.Errorf("Name=%q; want cohortnorm", j.Name)
	}
	if j.DataDir != "data" {
		t.Errorf("DataDir=%q; want data", j.DataDir)
	}
	if j.Workers != 1 {
		t.Errorf("Workers=%d; want 1", j.Workers)
	}
	if j.Storage.Kind != "csv" || j.Storage.Dir != "results" {
		t.Errorf("Storage=%+v; want kind=csv dir=results", j.Storage)
	}

	n := j.Normalize
	if n.BatchRows != DefaultBatchRows {
		t.Errorf("BatchRows=%d; want %d", n.BatchRows, DefaultBatchRows)
	}
	if n.SampleRows != DefaultSampleRows {
		t.Errorf("SampleRows=%d; want %d", n.SampleRows, DefaultSampleRows)
	}
	if n.StatsBatchRows != DefaultStatsBatchRows {
		t.Errorf("StatsBatchRows=%d; want %d", n.StatsBatchRows, DefaultStatsBatchRows)
	}
	if n.StatsSampleCap != DefaultStatsSampleCap {
		t.Errorf("StatsSampleCap=%d; want %d", n.StatsSampleCap, DefaultStatsSampleCap)
	}
	if n.StatsSubsample != DefaultStatsSubsample {
		t.Errorf("StatsSubsample=%d; want %d", n.StatsSubsample, DefaultStatsSubsample)
	}
	if n.FlushRows != DefaultFlushRows {
		t.Errorf("FlushRows=%d; want %d", n.FlushRows, DefaultFlushRows)
	}
	if n.SigZ != DefaultSigZ {
		t.Errorf("SigZ=%v; want %v", n.SigZ, DefaultSigZ)
	}
	if len(n.IDColumns) != len(DefaultIDColumns) {
		t.Errorf("IDColumns=%v; want %v", n.IDColumns, DefaultIDColumns)
	}

	set := Job{Name: "x", Workers: 4, Normalize: Normalize{FlushRows: 10}}.WithDefaults()
	if set.Name != "x" || set.Workers != 4 || set.Normalize.FlushRows != 10 {
		t.Errorf("explicit values overwritten: %+v", set)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.json")
	body := `{
		"name": "brain_cancer",
		"cohorts": [{"name": "GEO"}, {"name": "NHANES", "dir": "/srv/nhanes"}],
		"reader": {"comma": ";", "lazy_quotes": true},
		"normalize": {"flush_rows": 1000, "sig_z": 3.0},
		"storage": {"kind": "sqlite", "dsn": "file:out.db"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	j, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if j.Name != "brain_cancer" {
		t.Errorf("Name=%q; want brain_cancer", j.Name)
	}
	if len(j.Cohorts) != 2 || j.Cohorts[1].Dir != "/srv/nhanes" {
		t.Errorf("Cohorts=%+v", j.Cohorts)
	}
	if got := j.Reader.Rune("comma", ','); got != ';' {
		t.Errorf("reader comma=%q; want ';'", got)
	}
	if j.Normalize.FlushRows != 1000 || j.Normalize.SigZ != 3.0 {
		t.Errorf("Normalize=%+v", j.Normalize)
	}
	// Knobs the file left out must still get defaults.
	if j.Normalize.BatchRows != DefaultBatchRows {
		t.Errorf("BatchRows=%d; want default %d", j.Normalize.BatchRows, DefaultBatchRows)
	}
	if j.Storage.Kind != "sqlite" || j.Storage.DSN != "file:out.db" {
		t.Errorf("Storage=%+v", j.Storage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("Load of missing file returned nil error")
	}
}
