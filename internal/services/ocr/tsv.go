package ocr

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"
)

// Column layout of tesseract's TSV renderer.
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	tsvColumns
)

const wordLevel = 5

// ParseTSV reads word rows from tesseract TSV output. Rows that are not words,
// carry no text, or have a confidence of -1 are skipped.
func ParseTSV(r io.Reader) ([]Hit, error) {
	var hits []Hit

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		row := scanner.Text()
		if row == "" || strings.HasPrefix(row, "level") {
			continue
		}

		fields := strings.Split(row, "\t")
		if len(fields) < tsvColumns-1 {
			return nil, fmt.Errorf("tsv line %d: expected %d columns, got %d", line, tsvColumns, len(fields))
		}
		if level, err := strconv.Atoi(fields[colLevel]); err != nil || level != wordLevel {
			continue
		}
		if len(fields) < tsvColumns {
			continue
		}
		text := strings.TrimSpace(fields[colText])
		if text == "" {
			continue
		}

		conf, err := strconv.ParseFloat(fields[colConf], 64)
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: bad confidence %q", line, fields[colConf])
		}
		if conf < 0 {
			continue
		}

		var box [4]int
		for i, col := range []int{colLeft, colTop, colWidth, colHeight} {
			v, err := strconv.Atoi(fields[col])
			if err != nil {
				return nil, fmt.Errorf("tsv line %d: bad geometry %q", line, fields[col])
			}
			box[i] = v
		}

		hits = append(hits, Hit{
			Text:       text,
			Box:        image.Rect(box[0], box[1], box[0]+box[2], box[1]+box[3]),
			Confidence: clampConfidence(conf / 100),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tsv: %w", err)
	}
	return hits, nil
}
