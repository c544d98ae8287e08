package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultWorkType is used when a submission is saved without a work type.
const DefaultWorkType = "homework"

const workTimestampLayout = "20060102_150405"

// SafeName strips everything except letters, digits, space, hyphen and
// underscore from a student name so it can be used in a file name.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// WorkFileName builds the artifact name for a submission saved at t.
func WorkFileName(student, workType string, t time.Time) string {
	if workType == "" {
		workType = DefaultWorkType
	}
	return fmt.Sprintf("%s_%s_%s.txt", SafeName(student), SafeName(workType), t.Format(workTimestampLayout))
}

// writeWork stores text verbatim under dir and returns the artifact path.
func writeWork(dir, student, workType, text string, t time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("works directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create works dir: %w", err)
	}

	path := filepath.Join(dir, WorkFileName(student, workType, t))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write work: %w", err)
	}
	return path, nil
}
