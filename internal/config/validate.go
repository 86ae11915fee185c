// Package config provides configuration models and helpers for normalization jobs.
//
// This file adds a lightweight linter/validator for Job values. It performs
// static checks over a decoded Job and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Job.
//
// Path is a dotted path into the config (e.g. "storage.kind", "cohorts[1].name").
// Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidateJob performs static validation / linting of a Job.
//
// It does not mutate the job. Instead it returns a slice of Issue values;
// callers decide whether to treat warnings as fatal. Validation assumes
// WithDefaults has already run, so zero-valued knobs are not flagged.
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Name) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "name",
			Message:  "name must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	if len(j.Cohorts) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "cohorts",
			Message:  "at least one cohort is required",
		})
	}

	seen := map[string]bool{}
	for i, c := range j.Cohorts {
		path := fmt.Sprintf("cohorts[%d]", i)
		if strings.TrimSpace(c.Name) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  "cohort name must not be empty",
			})
			continue
		}
		if seen[c.Name] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  fmt.Sprintf("duplicate cohort %q; cohorts own their output artifacts exclusively", c.Name),
			})
		}
		seen[c.Name] = true
	}

	issues = append(issues, validateStorage(j.Storage)...)
	issues = append(issues, validateNormalize(j.Normalize)...)
	issues = append(issues, validateReader(j.Reader)...)

	return issues
}

// validateStorage validates the artifact sink configuration.
func validateStorage(s Storage) []Issue {
	var issues []Issue

	switch s.Kind {
	case "csv":
		if strings.TrimSpace(s.Dir) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.dir",
				Message:  "storage.dir is required for the csv sink",
			})
		}
	case "sqlite", "postgres":
		if strings.TrimSpace(s.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.dsn",
				Message:  fmt.Sprintf("storage.dsn is required for the %s sink", s.Kind),
			})
		}
	default:
		// Unknown kinds are warnings for forward compatibility; the storage
		// factory will reject them at open time if nothing registered them.
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q (known: csv, sqlite, postgres)", s.Kind),
		})
	}
	return issues
}

// validateNormalize sanity-checks knob relationships the defaults cannot fix.
func validateNormalize(n Normalize) []Issue {
	var issues []Issue

	if n.StatsSubsample > n.StatsSampleCap {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "normalize.stats_subsample",
			Message: fmt.Sprintf(
				"stats_subsample (%d) exceeds stats_sample_cap (%d); subsampling will never trigger",
				n.StatsSubsample, n.StatsSampleCap,
			),
		})
	}
	if n.FlushRows < n.BatchRows {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "normalize.flush_rows",
			Message: fmt.Sprintf(
				"flush_rows (%d) is below batch_rows (%d); every batch will flush its own artifact",
				n.FlushRows, n.BatchRows,
			),
		})
	}
	return issues
}

// validateReader checks the reader options bag for values the reader would
// silently ignore at run time.
func validateReader(o Options) []Issue {
	var issues []Issue

	switch enc := o.String("encoding", "utf8"); enc {
	case "utf8", "utf-8", "latin1", "iso-8859-1", "windows-1252":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "reader.encoding",
			Message:  fmt.Sprintf("unsupported encoding %q (known: utf8, latin1, windows-1252)", enc),
		})
	}
	if c := o.String("comma", ""); len([]rune(c)) > 1 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "reader.comma",
			Message:  fmt.Sprintf("comma %q has more than one rune; only the first is used", c),
		})
	}
	return issues
}
