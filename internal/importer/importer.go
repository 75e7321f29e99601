// Package importer reads OHLCV candles from CSV text. The importer is
// tolerant: individual bad rows are dropped and reported, and the import
// only fails outright for file-level problems (unreadable file, missing
// header columns, or zero surviving rows).
package importer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/stockbt/stockbt/internal/timeutil"
	"github.com/stockbt/stockbt/internal/types"
	"github.com/stockbt/stockbt/pkg/errors"
)

const missingColumn = -1

// headerIndex maps normalized header names to their column position.
type headerIndex map[string]int

// normalizeHeader trims whitespace, strips one pair of enclosing angle
// brackets (MetaTrader-style "<CLOSE>" headers) and lowercases.
func normalizeHeader(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && name[0] == '<' && name[len(name)-1] == '>' {
		name = name[1 : len(name)-1]
	}

	return strings.ToLower(strings.TrimSpace(name))
}

// findAny returns the column index of the first matching alias, or missingColumn.
func (h headerIndex) findAny(names ...string) int {
	for _, name := range names {
		if idx, ok := h[name]; ok {
			return idx
		}
	}

	return missingColumn
}

// parseLine splits one CSV line into trimmed fields, honoring double-quoted
// commas and doubled-quote escaping.
func parseLine(line string) []string {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	fields, err := reader.Read()
	if err != nil {
		return nil
	}

	for i, field := range fields {
		fields[i] = strings.TrimSpace(field)
	}

	return fields
}

// parseFloatStrict parses a float with no trailing garbage permitted.
// NaN and infinities are rejected: they would sail through the ordered
// price checks below and poison every downstream equity value.
func parseFloatStrict(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}

	return value, true
}

// columnLayout is the resolved header schema of one file.
type columnLayout struct {
	timestamp int // single timestamp/date column, or missingColumn
	date      int // split-layout YYYYMMDD column
	clock     int // split-layout HHMMSS column
	open      int
	high      int
	low       int
	close     int
	volume    int
}

func (c columnLayout) splitDateTime() bool {
	return c.date != missingColumn && c.clock != missingColumn
}

func (c columnLayout) valid() bool {
	if c.timestamp == missingColumn && !c.splitDateTime() {
		return false
	}

	return c.open != missingColumn && c.high != missingColumn &&
		c.low != missingColumn && c.close != missingColumn && c.volume != missingColumn
}

// maxIndex is the highest required column position; rows shorter than this
// are missing required values.
func (c columnLayout) maxIndex() int {
	columns := []int{c.open, c.high, c.low, c.close, c.volume}
	if c.splitDateTime() {
		columns = append(columns, c.date, c.clock)
	} else {
		columns = append(columns, c.timestamp)
	}

	max := 0
	for _, idx := range columns {
		if idx > max {
			max = idx
		}
	}

	return max
}

func resolveLayout(headers []string) columnLayout {
	index := make(headerIndex, len(headers))
	for i, raw := range headers {
		index[normalizeHeader(raw)] = i
	}

	return columnLayout{
		timestamp: index.findAny("timestamp", "date"),
		date:      index.findAny("dtyyyymmdd"),
		clock:     index.findAny("time"),
		open:      index.findAny("open"),
		high:      index.findAny("high"),
		low:       index.findAny("low"),
		close:     index.findAny("close"),
		volume:    index.findAny("volume", "vol"),
	}
}

func appendIssue(issues []types.ImportIssue, line int, message string) []types.ImportIssue {
	return append(issues, types.ImportIssue{Line: line, Message: message})
}

// ImportFile opens path and imports its contents.
func ImportFile(path string, format types.DateFormat) types.ImportResult {
	file, err := os.Open(path)
	if err != nil {
		var result types.ImportResult
		result.FailureCode = errors.ErrCodeImportOpenFailed
		result.Errors = appendIssue(result.Errors, 0, fmt.Sprintf("Unable to open CSV file: %s", path))

		return result
	}
	defer file.Close()

	return Import(file, format)
}

// Import reads CSV candles from r. The first line is the header; data rows
// are 1-indexed counting the header, so the first data row is line 2.
func Import(r io.Reader, format types.DateFormat) types.ImportResult {
	var result types.ImportResult

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		result.FailureCode = errors.ErrCodeImportEmptyFile
		result.Errors = appendIssue(result.Errors, 1, "CSV is empty")

		return result
	}

	layout := resolveLayout(parseLine(scanner.Text()))
	if !layout.valid() {
		result.FailureCode = errors.ErrCodeImportBadHeader
		result.Errors = appendIssue(result.Errors, 1,
			"Missing required columns. Required: Date/Timestamp OR DTYYYYMMDD+TIME, Open, High, Low, Close, Volume/VOL")

		return result
	}

	var (
		rowIssues []types.ImportIssue
		validRows []types.Candle
	)

	maxIndex := layout.maxIndex()
	lineNumber := 1

	for scanner.Scan() {
		lineNumber++

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := parseLine(line)
		if len(fields) <= maxIndex {
			result.DroppedRows++
			rowIssues = appendIssue(rowIssues, lineNumber, "Dropped row: missing one or more required field values")

			continue
		}

		var (
			ts    int64
			tsErr error
		)

		if layout.splitDateTime() {
			ts, tsErr = timeutil.ParseSplitDateTime(fields[layout.date], fields[layout.clock])
		} else {
			ts, tsErr = timeutil.ParseTimestamp(fields[layout.timestamp], format)
		}

		if tsErr != nil {
			result.DroppedRows++
			rowIssues = appendIssue(rowIssues, lineNumber, "Dropped row: invalid timestamp format")

			continue
		}

		open, okO := parseFloatStrict(fields[layout.open])
		high, okH := parseFloatStrict(fields[layout.high])
		low, okL := parseFloatStrict(fields[layout.low])
		closePrice, okC := parseFloatStrict(fields[layout.close])
		volume, okV := parseFloatStrict(fields[layout.volume])

		if !okO || !okH || !okL || !okC || !okV {
			result.DroppedRows++
			rowIssues = appendIssue(rowIssues, lineNumber, "Dropped row: invalid numeric value")

			continue
		}

		if open <= 0 || high <= 0 || low <= 0 || closePrice <= 0 {
			result.DroppedRows++
			rowIssues = appendIssue(rowIssues, lineNumber, "Dropped row: prices must be > 0")

			continue
		}

		if volume < 0 {
			result.DroppedRows++
			rowIssues = appendIssue(rowIssues, lineNumber, "Dropped row: volume must be >= 0")

			continue
		}

		validRows = append(validRows, types.Candle{
			Ts:     ts,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	if len(validRows) == 0 {
		result.FailureCode = errors.ErrCodeImportNoValidRows
		result.Errors = appendIssue(result.Errors, 0, "Import failed: zero valid rows remain after filtering")
		result.Errors = append(result.Errors, rowIssues...)

		return result
	}

	unordered := false

	for i := 1; i < len(validRows); i++ {
		if validRows[i].Ts < validRows[i-1].Ts {
			unordered = true

			break
		}
	}

	if unordered {
		result.Warnings = appendIssue(result.Warnings, 0, "Timestamps were unsorted. Data was sorted ascending.")
	}

	sort.SliceStable(validRows, func(i, j int) bool { return validRows[i].Ts < validRows[j].Ts })

	// Later rows override earlier ones sharing a timestamp.
	deduped := validRows[:0:0]
	duplicates := 0

	for _, candle := range validRows {
		if len(deduped) > 0 && deduped[len(deduped)-1].Ts == candle.Ts {
			deduped[len(deduped)-1] = candle
			duplicates++
		} else {
			deduped = append(deduped, candle)
		}
	}

	if duplicates > 0 {
		result.Warnings = appendIssue(result.Warnings, 0,
			fmt.Sprintf("Duplicate timestamps detected. Kept last occurrence for %d row(s).", duplicates))
	}

	result.Candles = deduped
	result.Success = true
	result.PartialSuccess = result.DroppedRows > 0

	if result.PartialSuccess {
		result.Warnings = append(result.Warnings, rowIssues...)
	}

	return result
}
