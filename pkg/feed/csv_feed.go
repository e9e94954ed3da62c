// Package feed loads historical daily bars and freezes them into the
// immutable snapshot every simulation reads. Files are parsed once, up
// front; nothing in this package is touched by the optimization loop.
package feed

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/logger"
)

// defaultHeaderMap is the column order assumed for headerless files.
var defaultHeaderMap = map[string]int{
	"timestamp": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5,
}

// timeLayouts are the accepted date formats besides unix seconds.
var timeLayouts = []string{time.RFC3339, "2006-01-02"}

// SymbolFile binds one symbol to its CSV history file.
type SymbolFile struct {
	Symbol string
	File   string
}

// CSVFeed serves daily bars from per-symbol CSV files. It implements
// core.Feeder; files are read lazily on the first Bars call for their
// symbol.
type CSVFeed struct {
	files   map[string]string
	symbols []string
	log     logger.Logger
}

// NewCSVFeed builds a feed over the given symbol files. A nil logger
// disables row-skip warnings.
func NewCSVFeed(log logger.Logger, files ...SymbolFile) *CSVFeed {
	feed := &CSVFeed{
		files: make(map[string]string, len(files)),
		log:   log,
	}
	for _, f := range files {
		if _, dup := feed.files[f.Symbol]; !dup {
			feed.symbols = append(feed.symbols, f.Symbol)
		}
		feed.files[f.Symbol] = f.File
	}
	sort.Strings(feed.symbols)
	return feed
}

// Symbols lists the configured universe in lexical order.
func (c *CSVFeed) Symbols() []string {
	return append([]string(nil), c.symbols...)
}

// Bars reads, parses and time-sorts one symbol's history. Rows that
// fail to parse are skipped with a warning; a file that cannot be
// opened or holds no parsable rows is an error for this symbol only.
func (c *CSVFeed) Bars(symbol string) ([]core.Bar, error) {
	file, ok := c.files[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no file for symbol %s", core.ErrNotFound, symbol)
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", symbol, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	lines, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", symbol, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", core.ErrShortHistory, symbol)
	}

	headerMap, hasHeaders := parseHeaders(lines[0])
	if hasHeaders {
		lines = lines[1:]
	}

	bars := make([]core.Bar, 0, len(lines))
	for i, line := range lines {
		bar, err := parseBarFromLine(line, headerMap, symbol)
		if err != nil {
			c.warnf("%s: skipping row %d: %v", symbol, i+1, err)
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s has no parsable rows", core.ErrShortHistory, symbol)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})
	return bars, nil
}

func (c *CSVFeed) warnf(format string, args ...any) {
	if c.log != nil {
		c.log.Warnf(format, args...)
	}
}

// parseHeaders decides whether the first line is a header row. A first
// cell that parses as a timestamp means the file starts with data and
// the default column order applies.
func parseHeaders(first []string) (map[string]int, bool) {
	if len(first) == 0 {
		return defaultHeaderMap, false
	}
	if _, err := parseTimestamp(first[0]); err == nil {
		return defaultHeaderMap, false
	}

	headerMap := make(map[string]int, len(first))
	for index, header := range first {
		headerMap[header] = index
	}
	// Accept "time" as an alias for the timestamp column.
	if _, ok := headerMap["timestamp"]; !ok {
		if i, ok := headerMap["time"]; ok {
			headerMap["timestamp"] = i
		}
	}
	return headerMap, true
}

func parseBarFromLine(line []string, headerMap map[string]int, symbol string) (core.Bar, error) {
	field := func(name string) (string, error) {
		i, ok := headerMap[name]
		if !ok || i >= len(line) {
			return "", fmt.Errorf("missing %s column", name)
		}
		return line[i], nil
	}

	raw, err := field("timestamp")
	if err != nil {
		return core.Bar{}, err
	}
	ts, err := parseTimestamp(raw)
	if err != nil {
		return core.Bar{}, err
	}

	bar := core.Bar{Symbol: symbol, Time: ts}
	for name, dst := range map[string]*float64{
		"open": &bar.Open, "high": &bar.High, "low": &bar.Low,
		"close": &bar.Close, "volume": &bar.Volume,
	} {
		raw, err := field(name)
		if err != nil {
			return core.Bar{}, err
		}
		if *dst, err = strconv.ParseFloat(raw, 64); err != nil {
			return core.Bar{}, fmt.Errorf("bad %s value %q", name, raw)
		}
	}
	return bar, nil
}

// parseTimestamp accepts unix seconds or one of the date layouts,
// always normalized to UTC.
func parseTimestamp(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}
