// Package importer reads code lists from text and CSV files and writes the
// CSV export.
package importer

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	textunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"codetrace/internal/models"
	"codetrace/internal/services/codes"
)

// Format identifies an import file type.
type Format string

const (
	FormatText Format = "txt"
	FormatCSV  Format = "csv"
)

// FormatFor picks the format from a file name; anything that is not .csv is
// read as plain text.
func FormatFor(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return FormatCSV
	}
	return FormatText
}

// Parse reads r in the format implied by name.
func Parse(name string, r io.Reader, now time.Time) ([]models.NewCode, error) {
	switch FormatFor(name) {
	case FormatCSV:
		return ParseCSV(r, now)
	default:
		return ParseText(r, now)
	}
}

// ParseText reads one code per line. Lines that are not canonical codes are
// skipped.
func ParseText(r io.Reader, now time.Time) ([]models.NewCode, error) {
	var out []models.NewCode

	scanner := bufio.NewScanner(utf8Reader(r))
	for scanner.Scan() {
		code := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if code == "" || !codes.IsCanonical(code) {
			continue
		}
		out = append(out, models.NewCode{Code: code, Status: models.DefaultStatus, CreatedAt: now})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}
	return out, nil
}

// utf8Reader strips a leading byte order mark.
func utf8Reader(r io.Reader) io.Reader {
	return transform.NewReader(r, textunicode.BOMOverride(transform.Nop))
}

// fold lowercases s and strips diacritics so "Último" and "ultimo" compare
// equal.
func fold(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(folder, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

var statusAliases = map[string]models.Status{
	"sold out":  models.StatusSoldOut,
	"no more":   models.StatusSoldOut,
	"no hay":    models.StatusSoldOut,
	"agotado":   models.StatusSoldOut,
	"pendiente": models.StatusPending,
}

// ParseStatus maps an export label, a status id or a known alias to a
// status. Unknown text yields the default status and false.
func ParseStatus(text string) (models.Status, bool) {
	key := fold(text)
	if key == "" {
		return models.DefaultStatus, false
	}
	for _, s := range models.Statuses {
		if key == fold(string(s)) || key == fold(s.Label()) {
			return s, true
		}
	}
	if s, ok := statusAliases[key]; ok {
		return s, true
	}
	return models.DefaultStatus, false
}

// parseUsed reports whether text is one of the accepted "yes" values.
func parseUsed(text string) bool {
	switch fold(text) {
	case "si", "yes", "y", "1", "true", "x":
		return true
	}
	return false
}
