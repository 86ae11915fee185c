package file

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverCohort lists the delimited resources belonging to one cohort: every
// "*.csv" file directly under <root>/<cohort>/, sorted by name so that a run
// over an unchanged directory is reproducible.
//
// A missing or empty cohort directory is not an error; it returns an empty
// slice, which callers treat as "nothing to process".
func DiscoverCohort(root, cohort string) ([]*Local, error) {
	return DiscoverDir(filepath.Join(root, cohort))
}

// DiscoverDir lists every "*.csv" file directly under dir, sorted by name.
func DiscoverDir(dir string) ([]*Local, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]*Local, 0, len(paths))
	for _, p := range paths {
		out = append(out, NewLocal(p))
	}
	return out, nil
}

// ReadList reads a text file line by line and returns a slice of strings
// containing non-empty, non-comment lines.
//
// Lines that are empty or start with '#' (after trimming leading/trailing
// whitespace) are skipped. This makes it convenient to maintain list files
// with comments and blank separators.
//
// The order of lines is preserved. On I/O error, a non-nil error is returned.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
