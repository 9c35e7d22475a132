package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// resultsTimeFormat names result files so they sort chronologically.
const resultsTimeFormat = "20060102_150405"

// ResultsFileName is the file name WriteResultsFile uses for rec.
func ResultsFileName(rec *Record) string {
	return fmt.Sprintf("run_%s.json", rec.Timestamp.UTC().Format(resultsTimeFormat))
}

// WriteResultsFile writes rec as indented JSON into dir and returns the path.
func WriteResultsFile(dir string, rec *Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("no record to write")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	path := filepath.Join(dir, ResultsFileName(rec))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}
	return path, nil
}

// ReadResultsFile loads a record written by WriteResultsFile.
func ReadResultsFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &rec, nil
}

// ListResultsFiles returns the result files in dir, newest first. A missing
// directory yields no files.
func ListResultsFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "run_") || filepath.Ext(name) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}
