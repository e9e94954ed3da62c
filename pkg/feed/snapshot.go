package feed

import (
	"fmt"
	"sort"
	"time"

	"github.com/StudioSol/set"

	"github.com/quantforge/evorun/pkg/backtest"
	"github.com/quantforge/evorun/pkg/core"
	"github.com/quantforge/evorun/pkg/logger"
	"github.com/quantforge/evorun/pkg/regime"
)

// MinHistory is the bar count below which a symbol is dropped from the
// snapshot: shorter series cannot warm up the slowest indicators.
const MinHistory = 50

// Snapshot is the frozen market view the whole run evaluates against:
// a lexically ordered universe, one union calendar, per-day bar lookup
// and the reference symbol's regime timeline. It is built once and
// never mutated, so any number of simulations can read it at the same
// time.
type Snapshot struct {
	universe  *set.LinkedHashSetString
	symbols   []string
	series    map[string][]core.Bar
	calendar  []time.Time
	index     map[string][]int
	labels    []string
	reference string
}

var _ backtest.Market = (*Snapshot)(nil)

type snapshotSettings struct {
	reference  string
	minHistory int
	detector   regime.DetectorConfig
	log        logger.Logger
}

// SnapshotOption customizes snapshot assembly.
type SnapshotOption func(*snapshotSettings)

// WithReferenceSymbol picks the symbol whose closes drive the regime
// timeline. Defaults to the first symbol in lexical order.
func WithReferenceSymbol(symbol string) SnapshotOption {
	return func(s *snapshotSettings) {
		s.reference = symbol
	}
}

// WithMinHistory overrides the minimum bar count per symbol.
func WithMinHistory(n int) SnapshotOption {
	return func(s *snapshotSettings) {
		s.minHistory = n
	}
}

// WithDetectorConfig overrides the regime classification thresholds.
func WithDetectorConfig(config regime.DetectorConfig) SnapshotOption {
	return func(s *snapshotSettings) {
		s.detector = config
	}
}

// WithSnapshotLogger routes skip warnings to a logger.
func WithSnapshotLogger(log logger.Logger) SnapshotOption {
	return func(s *snapshotSettings) {
		s.log = log
	}
}

// NewSnapshot drains a feeder into an immutable market view. Symbols
// whose history errors out or is shorter than the minimum are dropped
// with a warning; an empty surviving universe is the only fatal case.
func NewSnapshot(feeder core.Feeder, opts ...SnapshotOption) (*Snapshot, error) {
	settings := snapshotSettings{
		minHistory: MinHistory,
		detector:   regime.DefaultDetectorConfig(),
	}
	for _, opt := range opts {
		opt(&settings)
	}

	s := &Snapshot{
		universe: set.NewLinkedHashSetString(),
		series:   make(map[string][]core.Bar),
		index:    make(map[string][]int),
	}

	requested := feeder.Symbols()
	sort.Strings(requested)

	for _, symbol := range requested {
		bars, err := feeder.Bars(symbol)
		if err != nil {
			warnf(settings.log, "dropping %s: %v", symbol, err)
			continue
		}
		if len(bars) < settings.minHistory {
			warnf(settings.log, "dropping %s: %v: %d bars, need %d",
				symbol, core.ErrShortHistory, len(bars), settings.minHistory)
			continue
		}
		s.universe.Add(symbol)
		s.symbols = append(s.symbols, symbol)
		s.series[symbol] = bars
	}

	if len(s.symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbol survived loading", core.ErrEmptyUniverse)
	}

	s.buildCalendar()
	s.buildIndex()
	s.buildRegimeTimeline(settings)
	return s, nil
}

// buildCalendar merges every symbol's bars through the priority queue
// into one ascending, duplicate-free day list.
func (s *Snapshot) buildCalendar() {
	total := 0
	for _, bars := range s.series {
		total += len(bars)
	}

	items := make([]core.Item, 0, total)
	for symbol := range s.universe.Iter() {
		for _, b := range s.series[symbol] {
			items = append(items, b)
		}
	}

	q := core.NewPriorityQueue(items)
	for q.Len() > 0 {
		bar := q.Pop().(core.Bar)
		if n := len(s.calendar); n == 0 || bar.Time.After(s.calendar[n-1]) {
			s.calendar = append(s.calendar, bar.Time)
		}
	}
}

// buildIndex maps every calendar day to each symbol's own series
// position, -1 where the symbol has no bar.
func (s *Snapshot) buildIndex() {
	dayOf := make(map[time.Time]int, len(s.calendar))
	for i, ts := range s.calendar {
		dayOf[ts] = i
	}

	for symbol, bars := range s.series {
		idx := make([]int, len(s.calendar))
		for i := range idx {
			idx[i] = -1
		}
		for pos, b := range bars {
			idx[dayOf[b.Time]] = pos
		}
		s.index[symbol] = idx
	}
}

// buildRegimeTimeline classifies the reference symbol once and spreads
// its labels across the calendar, carrying the last label over days
// the reference does not trade.
func (s *Snapshot) buildRegimeTimeline(settings snapshotSettings) {
	s.reference = settings.reference
	if s.reference == "" || !s.universe.InArray(s.reference) {
		if settings.reference != "" {
			warnf(settings.log, "reference symbol %s not in universe, using %s",
				settings.reference, s.symbols[0])
		}
		s.reference = s.symbols[0]
	}

	detector := regime.NewDetector(settings.detector)
	refLabels := regime.Strings(detector.Timeline(core.Closes(s.series[s.reference])))

	s.labels = make([]string, len(s.calendar))
	last := regime.Unknown.String()
	for day := range s.calendar {
		if pos := s.index[s.reference][day]; pos >= 0 {
			last = refLabels[pos]
		}
		s.labels[day] = last
	}
}

// Symbols lists the surviving universe in lexical order.
func (s *Snapshot) Symbols() []string { return s.symbols }

// Calendar returns the union of all trading days, ascending.
func (s *Snapshot) Calendar() []time.Time { return s.calendar }

// SeriesOf returns a symbol's full ordered history, nil for unknown
// symbols.
func (s *Snapshot) SeriesOf(symbol string) []core.Bar { return s.series[symbol] }

// BarIndex maps a calendar day to the symbol's series position, or -1
// when the symbol has no bar that day.
func (s *Snapshot) BarIndex(symbol string, day int) int {
	idx, ok := s.index[symbol]
	if !ok || day < 0 || day >= len(idx) {
		return -1
	}
	return idx[day]
}

// RegimeLabels returns the per-day regime labels of the reference
// symbol.
func (s *Snapshot) RegimeLabels() []string { return s.labels }

// ReferenceSymbol returns the symbol driving the regime timeline.
func (s *Snapshot) ReferenceSymbol() string { return s.reference }

func warnf(log logger.Logger, format string, args ...any) {
	if log != nil {
		log.Warnf(format, args...)
	}
}
