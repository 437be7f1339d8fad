package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"codetrace/internal/models"
)

// ExportHeader is the first row of every export; ParseCSV reads it back.
var ExportHeader = []string{"Code", "Description", "Status", "Used", "Date"}

const utf8BOM = "\uFEFF"

// WriteCSV writes codes as a semicolon separated file with a UTF-8 byte order
// mark so spreadsheet applications pick the right encoding.
func WriteCSV(w io.Writer, list []models.Code) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}

	writer := csv.NewWriter(w)
	writer.Comma = ';'

	if err := writer.Write(ExportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, c := range list {
		used := "No"
		if c.Annotated {
			used = "Yes"
		}
		status := c.Status
		if status == "" {
			status = models.DefaultStatus
		}
		record := []string{c.Code, c.Description, status.Label(), used, c.CreatedAt.UTC().Format(time.RFC3339)}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportFileName is the suggested download name for an export made at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("codes_%s.csv", t.Format("20060102_150405"))
}
