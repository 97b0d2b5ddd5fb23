package gitlab

import (
	"fmt"
	"sort"
	"strings"
)

// Markers that indicate an error site in a CI log. Matched as plain
// substrings, case variants listed explicitly to keep the scan cheap.
var errorMarkers = []string{
	"error:", "Error:", "ERROR:",
	"failed:", "FAILED:",
	"exception:", "Exception:", "EXCEPTION:",
	"fatal:", "Fatal:", "FATAL:",
	"build failed", "Build failed", "BUILD FAILED",
	"test failed", "Test failed", "TEST FAILED",
	"compilation failed",
	"exit code", "Exit code",
	"exit status",
}

const truncationMarker = "... [LOG TRUNCATED DUE TO SIZE] ...\n"
const contextGapMarker = "... [CONTEXT GAP] ..."

// ProcessLog bounds a raw job trace to maxSizeMB and, for failed or canceled
// jobs, reduces it to numbered windows of contextLines lines around each
// error marker. Deterministic: identical inputs produce identical output.
func ProcessLog(content string, maxSizeMB, contextLines int, status string) string {
	if content == "" {
		return content
	}

	if maxSizeMB > 0 {
		content = capSize(content, maxSizeMB)
	}

	if contextLines > 0 && (status == "failed" || status == "canceled") {
		content = extractErrorContext(content, contextLines)
	}

	return content
}

// capSize keeps the last half of the byte budget. CI failures cluster near
// the tail of the log, so the head is the safe part to drop.
func capSize(content string, maxSizeMB int) string {
	maxBytes := maxSizeMB * 1024 * 1024
	if len(content) <= maxBytes {
		return content
	}

	keep := maxBytes / 2
	tail := content[len(content)-keep:]

	// Resync to a line boundary so the excerpt does not open mid-line.
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}

	return truncationMarker + tail
}

// extractErrorContext scans line by line for error markers and keeps a
// window of context lines around each match, merging overlaps. Kept lines
// carry their original 1-based line numbers. When no marker matches, the
// last 2*contextLines lines are returned unchanged.
func extractErrorContext(content string, contextLines int) string {
	lines := strings.Split(content, "\n")

	var matches []int
	for i, line := range lines {
		for _, marker := range errorMarkers {
			if strings.Contains(line, marker) {
				matches = append(matches, i)
				break
			}
		}
	}

	if len(matches) == 0 {
		start := len(lines) - 2*contextLines
		if start < 0 {
			start = 0
		}
		return strings.Join(lines[start:], "\n")
	}

	type window struct{ start, end int }
	var windows []window
	for _, m := range matches {
		start := m - contextLines
		if start < 0 {
			start = 0
		}
		end := m + contextLines
		if end > len(lines)-1 {
			end = len(lines) - 1
		}
		windows = append(windows, window{start, end})
	}

	sort.Slice(windows, func(i, j int) bool { return windows[i].start < windows[j].start })

	var merged []window
	for _, w := range windows {
		if len(merged) > 0 && w.start <= merged[len(merged)-1].end+1 {
			if w.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = w.end
			}
			continue
		}
		merged = append(merged, w)
	}

	var b strings.Builder
	for i, w := range merged {
		if i > 0 {
			b.WriteString(contextGapMarker)
			b.WriteByte('\n')
		}
		for n := w.start; n <= w.end; n++ {
			fmt.Fprintf(&b, "%4d: %s\n", n+1, lines[n])
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}
