// Package config defines the canonical, JSON-serializable configuration model
// for a normalization job. It is intentionally small, explicit, and dependency-
// free so that jobs can be loaded from disk and passed through the program
// without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in job files
//     under configs/*.json.
//  3. Minimalism: No third-party config libraries; decoding is performed by the
//     standard library, with a light Options helper for typed access.
//
// Example (trimmed):
//
//	{
//	  "name":     "brain_cancer",
//	  "data_dir": "data",
//	  "cohorts":  [ { "name": "GEO" }, { "name": "NHANES" } ],
//	  "reader":   { "comma": ",", "lazy_quotes": true },
//	  "normalize":{ "flush_rows": 500000, "sig_z": 2.0 },
//	  "storage":  { "kind": "csv", "dir": "results" }
//	}
package config

import (
	"encoding/json"
	"os"
)

// Job is the top-level object decoded from a job file. One Job covers any
// number of cohorts; cohorts never share state at run time.
type Job struct {
	// Name labels the run in logs and metrics. Defaults to "cohortnorm".
	Name string `json:"name"`

	// DataDir is the storage-layer root; cohort resources live under
	// <data_dir>/<cohort>/*.csv unless a cohort overrides its Dir.
	DataDir string `json:"data_dir"`

	// Cohorts lists the cohorts to process. Each is handled independently.
	Cohorts []Cohort `json:"cohorts"`

	// Reader carries delimited-reader options interpreted by internal/reader.
	// Typical keys: comma (string), lazy_quotes (bool), trim_space (bool),
	// encoding (string: "utf8", "latin1", "windows-1252").
	Reader Options `json:"reader"`

	// Normalize holds the tuning knobs of the normalization engine.
	Normalize Normalize `json:"normalize"`

	// Storage selects the artifact sink.
	Storage Storage `json:"storage"`

	// Workers bounds how many cohorts run concurrently. Defaults to 1.
	Workers int `json:"workers"`
}

// Cohort names one group of related resources processed as a unit.
type Cohort struct {
	Name string `json:"name"`

	// Dir overrides the default <data_dir>/<name> resource location.
	Dir string `json:"dir,omitempty"`

	// URLs are fetched into the cohort directory before processing, resuming
	// partial downloads. Already-complete files are left untouched.
	URLs []string `json:"urls,omitempty"`

	// URLList optionally points to a line-based file of URLs (one per line,
	// '#' comments allowed) merged with URLs.
	URLList string `json:"url_list,omitempty"`
}

// Normalize carries the resource-bounding knobs of the engine. Zero values are
// replaced by defaults in WithDefaults.
type Normalize struct {
	// BatchRows caps rows per batch during the transform pass.
	BatchRows int `json:"batch_rows"`

	// SampleRows is the per-resource prefix read during schema discovery.
	SampleRows int `json:"sample_rows"`

	// StatsBatchRows caps the single per-resource batch read for statistics.
	StatsBatchRows int `json:"stats_batch_rows"`

	// StatsSampleCap and StatsSubsample control downsampling: a statistics
	// batch larger than StatsSampleCap rows is uniformly subsampled to
	// StatsSubsample rows with a fixed seed.
	StatsSampleCap int `json:"stats_sample_cap"`
	StatsSubsample int `json:"stats_subsample"`

	// FlushRows is the buffered-row threshold that triggers an intermediate
	// artifact flush.
	FlushRows int `json:"flush_rows"`

	// SigZ is the significance threshold on the batch-local z-score.
	SigZ float64 `json:"sig_z"`

	// IDColumns declares the exact identifier column names retained in the
	// output. Columns whose name contains "id" (case-insensitive) are always
	// retained as identifiers.
	IDColumns []string `json:"id_columns"`
}

// Storage selects the sink used to persist output artifacts.
type Storage struct {
	// Kind selects the sink implementation: "csv" (default), "sqlite",
	// "postgres".
	Kind string `json:"kind"`

	// Dir is the results directory for the "csv" kind.
	Dir string `json:"dir"`

	// DSN is the connection string for the database-backed kinds.
	DSN string `json:"dsn"`
}

// Defaults applied by WithDefaults. Exported so that tests and the engine can
// reference the same numbers the config layer uses.
const (
	DefaultBatchRows      = 100_000
	DefaultSampleRows     = 1000
	DefaultStatsBatchRows = 50_000
	DefaultStatsSampleCap = 5000
	DefaultStatsSubsample = 2000
	DefaultFlushRows      = 500_000
	DefaultSigZ           = 2.0
)

// DefaultIDColumns are the identifier names recognized in every job unless a
// job declares its own.
var DefaultIDColumns = []string{"patient_id", "sample_id"}

// Load reads and decodes a job file, then applies defaults.
func Load(path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, err
	}
	defer f.Close()

	var j Job
	dec := json.NewDecoder(f)
	if err := dec.Decode(&j); err != nil {
		return Job{}, err
	}
	return j.WithDefaults(), nil
}

// WithDefaults returns a copy of the job with zero-valued knobs replaced by
// their documented defaults.
func (j Job) WithDefaults() Job {
	if j.Name == "" {
		j.Name = "cohortnorm"
	}
	if j.DataDir == "" {
		j.DataDir = "data"
	}
	if j.Workers <= 0 {
		j.Workers = 1
	}
	if j.Storage.Kind == "" {
		j.Storage.Kind = "csv"
	}
	if j.Storage.Dir == "" {
		j.Storage.Dir = "results"
	}

	n := &j.Normalize
	if n.BatchRows <= 0 {
		n.BatchRows = DefaultBatchRows
	}
	if n.SampleRows <= 0 {
		n.SampleRows = DefaultSampleRows
	}
	if n.StatsBatchRows <= 0 {
		n.StatsBatchRows = DefaultStatsBatchRows
	}
	if n.StatsSampleCap <= 0 {
		n.StatsSampleCap = DefaultStatsSampleCap
	}
	if n.StatsSubsample <= 0 {
		n.StatsSubsample = DefaultStatsSubsample
	}
	if n.FlushRows <= 0 {
		n.FlushRows = DefaultFlushRows
	}
	if n.SigZ <= 0 {
		n.SigZ = DefaultSigZ
	}
	if len(n.IDColumns) == 0 {
		n.IDColumns = append([]string(nil), DefaultIDColumns...)
	}
	return j
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64;
// both float64 and int are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of the string value for key, or def when the
// key is missing or empty.
func (o Options) Rune(key string, def rune) rune {
	s := o.String(key, "")
	if s == "" {
		return def
	}
	return []rune(s)[0]
}
