package importer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"codetrace/internal/models"
	"codetrace/internal/services/codes"
)

const sniffSize = 1024

// columns holds the header positions found in a CSV file; -1 means absent.
type columns struct {
	code, description, status, used, date int
}

// ParseCSV reads a CSV file with a header row. The delimiter (',' or ';') is
// guessed from the first kilobyte and columns are located by header keyword
// in Spanish or English. Rows whose code is not canonical are skipped.
func ParseCSV(r io.Reader, now time.Time) ([]models.NewCode, error) {
	br := bufio.NewReaderSize(utf8Reader(r), sniffSize)
	sample, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(string(sample))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols := locate(header)

	var out []models.NewCode
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}

		code := strings.ToUpper(field(row, cols.code))
		if code == "" || !codes.IsCanonical(code) {
			continue
		}
		status, _ := ParseStatus(field(row, cols.status))

		item := models.NewCode{
			Code:        code,
			Description: field(row, cols.description),
			Status:      status,
			Annotated:   parseUsed(field(row, cols.used)),
			CreatedAt:   now,
		}
		if at, ok := parseDate(field(row, cols.date)); ok {
			item.CreatedAt = at
		}
		out = append(out, item)
	}
	return out, nil
}

func sniffDelimiter(sample string) rune {
	if strings.Count(sample, ",") > strings.Count(sample, ";") {
		return ','
	}
	return ';'
}

// locate finds columns by keyword. Without a recognisable header the code is
// taken from the first column and the status from the second.
func locate(header []string) columns {
	cols := columns{code: -1, description: -1, status: -1, used: -1, date: -1}
	for i, h := range header {
		key := fold(h)
		switch {
		case cols.code < 0 && strings.Contains(key, "cod"):
			cols.code = i
		case cols.description < 0 && strings.Contains(key, "descrip"):
			cols.description = i
		case cols.status < 0 && (strings.Contains(key, "estado") || strings.Contains(key, "status")):
			cols.status = i
		case cols.used < 0 && (strings.Contains(key, "usado") || strings.Contains(key, "editado") ||
			strings.Contains(key, "used") || strings.Contains(key, "annotated")):
			cols.used = i
		case cols.date < 0 && (strings.Contains(key, "fecha") || strings.Contains(key, "date") || strings.Contains(key, "created")):
			cols.date = i
		}
	}
	if cols.code < 0 {
		cols.code = 0
	}
	if cols.status < 0 && cols.code != 1 && cols.description != 1 {
		cols.status = 1
	}
	return cols
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
