package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantforge/evorun/pkg/core"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVFeed_HeaderlessUnixSeconds(t *testing.T) {
	day := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	content := fmt.Sprintf("%d,100,101,99,100.5,5000\n%d,100.5,102,100,101.5,6000\n",
		day.Unix(), day.AddDate(0, 0, 1).Unix())

	feed := NewCSVFeed(nil, SymbolFile{Symbol: "AAA", File: writeCSV(t, "aaa.csv", content)})

	bars, err := feed.Bars("AAA")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, "AAA", bars[0].Symbol)
	require.Equal(t, day, bars[0].Time)
	require.Equal(t, 100.0, bars[0].Open)
	require.Equal(t, 101.0, bars[0].High)
	require.Equal(t, 99.0, bars[0].Low)
	require.Equal(t, 100.5, bars[0].Close)
	require.Equal(t, 5000.0, bars[0].Volume)
}

func TestCSVFeed_HeaderRowWithShuffledColumns(t *testing.T) {
	content := "close,volume,time,open,high,low\n" +
		"100.5,5000,2022-01-03,100,101,99\n" +
		"101.5,6000,2022-01-04,100.5,102,100\n"

	feed := NewCSVFeed(nil, SymbolFile{Symbol: "BBB", File: writeCSV(t, "bbb.csv", content)})

	bars, err := feed.Bars("BBB")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), bars[0].Time)
	require.Equal(t, 100.5, bars[0].Close)
	require.Equal(t, 99.0, bars[0].Low)
}

func TestCSVFeed_SkipsUnparsableRows(t *testing.T) {
	content := "timestamp,open,high,low,close,volume\n" +
		"2022-01-03,100,101,99,100.5,5000\n" +
		"not-a-date,100,101,99,100.5,5000\n" +
		"2022-01-04,oops,101,99,100.5,5000\n" +
		"2022-01-05,101,102,100,101.5,6000\n"

	feed := NewCSVFeed(nil, SymbolFile{Symbol: "CCC", File: writeCSV(t, "ccc.csv", content)})

	bars, err := feed.Bars("CCC")
	require.NoError(t, err)
	require.Len(t, bars, 2, "two bad rows should be skipped")
}

func TestCSVFeed_SortsOutOfOrderRows(t *testing.T) {
	content := "2022-01-05,101,102,100,101.5,6000\n" +
		"2022-01-03,100,101,99,100.5,5000\n" +
		"2022-01-04,100.5,102,100,101,5500\n"

	feed := NewCSVFeed(nil, SymbolFile{Symbol: "DDD", File: writeCSV(t, "ddd.csv", content)})

	bars, err := feed.Bars("DDD")
	require.NoError(t, err)
	require.Len(t, bars, 3)
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i-1].Time.Before(bars[i].Time))
	}
}

func TestCSVFeed_ErrorCases(t *testing.T) {
	feed := NewCSVFeed(nil,
		SymbolFile{Symbol: "AAA", File: writeCSV(t, "empty.csv", "")},
		SymbolFile{Symbol: "BBB", File: filepath.Join(t.TempDir(), "missing.csv")},
	)

	_, err := feed.Bars("AAA")
	require.ErrorIs(t, err, core.ErrShortHistory)

	_, err = feed.Bars("BBB")
	require.Error(t, err)

	_, err = feed.Bars("ZZZ")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCSVFeed_SymbolsSorted(t *testing.T) {
	feed := NewCSVFeed(nil,
		SymbolFile{Symbol: "MSFT", File: "m.csv"},
		SymbolFile{Symbol: "AAPL", File: "a.csv"},
		SymbolFile{Symbol: "GOOG", File: "g.csv"},
	)
	require.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, feed.Symbols())
}
