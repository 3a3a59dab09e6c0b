package git

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/basislager/tickerchronik/internal/ticker"
)

const (
	recordLog = "records.ndjson"
	statsFile = "stats.json"

	// record logs can carry long posting bodies; one line per record.
	maxLineBytes = 4 * 1024 * 1024
)

// EncodeRecords renders records as NDJSON, one canonical JSON object
// per line, ready to append to a record log.
func EncodeRecords(records []ticker.Record) ([]byte, error) {
	var buf bytes.Buffer
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", r.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// DecodeRecords parses an NDJSON record log. Blank lines are ignored.
func DecodeRecords(data []byte) ([]ticker.Record, error) {
	var records []ticker.Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var r ticker.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan record log: %w", err)
	}
	return records, nil
}

// sourceStats is the regenerated per-source summary committed next to
// the record log.
type sourceStats struct {
	Updated time.Time     `json:"updated"`
	Records int           `json:"records"`
	Authors []authorStats `json:"authors"`
}

type authorStats struct {
	Name    string `json:"name"`
	Records int    `json:"records"`
}

// BuildStats summarizes a record log: total count and per-author
// tallies, sorted by count descending then name.
func BuildStats(records []ticker.Record) ([]byte, error) {
	counts := make(map[string]int)
	var updated time.Time
	for _, r := range records {
		if r.Author != "" {
			counts[r.Author]++
		}
		if r.ObservedAt.After(updated) {
			updated = r.ObservedAt
		}
	}

	authors := make([]authorStats, 0, len(counts))
	for name, n := range counts {
		authors = append(authors, authorStats{Name: name, Records: n})
	}
	sort.Slice(authors, func(i, j int) bool {
		if authors[i].Records != authors[j].Records {
			return authors[i].Records > authors[j].Records
		}
		return authors[i].Name < authors[j].Name
	})

	out, err := json.MarshalIndent(sourceStats{
		Updated: updated,
		Records: len(records),
		Authors: authors,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	return append(out, '\n'), nil
}

// classifyGitError maps git stderr output onto the pipeline taxonomy.
func classifyGitError(stderr string, err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// git binary missing or not executable; nothing to retry.
		return fmt.Errorf("git: %w", err)
	}

	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "non-fast-forward"),
		strings.Contains(lower, "fetch first"),
		strings.Contains(lower, "[rejected]"):
		return fmt.Errorf("%w: %s", ticker.ErrRemoteMoved, firstLine(stderr))
	case strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "403"):
		return fmt.Errorf("%w: %s", ticker.ErrUnauthorized, firstLine(stderr))
	case strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "unable to access"),
		strings.Contains(lower, "connection timed out"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "early eof"):
		return ticker.Transient(fmt.Errorf("git: %s", firstLine(stderr)))
	default:
		return fmt.Errorf("git: %s: %w", firstLine(stderr), err)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
