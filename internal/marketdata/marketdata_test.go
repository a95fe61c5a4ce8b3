package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewise/internal/config"
	"tradewise/internal/domain"
	"tradewise/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeBars is an in-memory barsClient.
type fakeBars struct {
	bars  []marketdata.Bar
	errs  []error
	calls int
	last  marketdata.GetBarsRequest
}

func (f *fakeBars) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.calls++
	f.last = req
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.bars, nil
}

// countingSource wraps a Source and counts calls.
type countingSource struct {
	Source
	calls int
}

func (c *countingSource) Bars(ctx context.Context, symbol, market string, r DateRange) ([]domain.Bar, error) {
	c.calls++
	return c.Source.Bars(ctx, symbol, market, r)
}

func TestDateRange(t *testing.T) {
	r := DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 31)}
	require.NoError(t, r.Validate())
	assert.Equal(t, 31, r.Days())
	assert.Equal(t, "2024-01-01..2024-01-31", r.String())

	assert.Error(t, DateRange{Start: day(2024, 2, 1), End: day(2024, 1, 1)}.Validate())
	assert.Error(t, DateRange{End: day(2024, 1, 1)}.Validate())
}

func TestMockSourceDeterministic(t *testing.T) {
	r := DateRange{Start: day(2024, 1, 1), End: day(2024, 3, 31)}
	a, err := NewMockSource(42).Bars(context.Background(), "aapl", "us", r)
	require.NoError(t, err)
	b, err := NewMockSource(42).Bars(context.Background(), "AAPL", "us", r)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := NewMockSource(42).Bars(context.Background(), "MSFT", "us", r)
	require.NoError(t, err)
	assert.NotEqual(t, a[len(a)-1].Close, c[len(c)-1].Close)
}

func TestMockSourceBarsAreValid(t *testing.T) {
	r := DateRange{Start: day(2020, 1, 1), End: day(2024, 12, 31)}
	bars, err := NewMockSource(7).Bars(context.Background(), "X", "us", r)
	require.NoError(t, err)

	_, err = domain.NewSeries(bars)
	require.NoError(t, err)
	for _, b := range bars {
		wd := b.Timestamp.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
		assert.GreaterOrEqual(t, b.High, b.Close)
		assert.LessOrEqual(t, b.Low, b.Close)
		assert.Positive(t, b.Low)
	}
}

func TestMockSourceWeekendOnly(t *testing.T) {
	_, err := NewMockSource(1).Bars(context.Background(), "X", "us", DateRange{Start: day(2024, 6, 1), End: day(2024, 6, 2)})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestAlpacaSourceConvertsBars(t *testing.T) {
	fake := &fakeBars{bars: []marketdata.Bar{
		{Timestamp: day(2024, 1, 3).Add(5 * time.Hour), Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 200, TradeCount: 20, VWAP: 2.2},
		{Timestamp: day(2024, 1, 2).Add(5 * time.Hour), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100, TradeCount: 10, VWAP: 1.2},
	}}
	src := newAlpacaSource(fake, AlpacaOptions{Feed: "iex", Adjustment: "all"})

	bars, err := src.Bars(context.Background(), " aapl ", "us", DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 5)})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, 1.5, bars[0].Close)
	assert.Equal(t, int64(200), bars[1].Volume)
	assert.Equal(t, int64(20), bars[1].TradeCount)

	assert.Equal(t, marketdata.OneDay, fake.last.TimeFrame)
	assert.Equal(t, day(2024, 1, 1), fake.last.Start)
	assert.True(t, fake.last.End.After(day(2024, 1, 5)))
}

func TestAlpacaSourceRetriesTransientErrors(t *testing.T) {
	fake := &fakeBars{
		errs: []error{errors.New("connection reset")},
		bars: []marketdata.Bar{{Timestamp: day(2024, 1, 2), Open: 1, High: 1, Low: 1, Close: 1}},
	}
	src := newAlpacaSource(fake, AlpacaOptions{MaxRetries: 3})
	src.retryDelay = 0

	_, err := src.Bars(context.Background(), "AAPL", "us", DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 5)})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestAlpacaSourceDoesNotRetryClientErrors(t *testing.T) {
	fake := &fakeBars{errs: []error{&alpaca.APIError{StatusCode: 422, Message: "invalid symbol"}}}
	src := newAlpacaSource(fake, AlpacaOptions{MaxRetries: 3})
	src.retryDelay = 0

	_, err := src.Bars(context.Background(), "???", "us", DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 5)})
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestAlpacaSourceRejectsOtherMarkets(t *testing.T) {
	src := newAlpacaSource(&fakeBars{}, AlpacaOptions{})
	_, err := src.Bars(context.Background(), "600519", "cn", DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 5)})
	assert.Error(t, err)
}

func TestAlpacaSourceEmpty(t *testing.T) {
	src := newAlpacaSource(&fakeBars{}, AlpacaOptions{})
	_, err := src.Bars(context.Background(), "AAPL", "us", DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 5)})
	assert.ErrorIs(t, err, ErrNoData)
}

type fakeCalendar struct {
	days []alpaca.CalendarDay
}

func (f *fakeCalendar) GetCalendar(alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	return f.days, nil
}

func TestLatestFinishedTradingDay(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cal := &fakeCalendar{days: []alpaca.CalendarDay{
		{Date: "2024-05-08"}, {Date: "2024-05-09"}, {Date: "2024-05-10"},
	}}

	// During the session the previous trading day is the latest finished one.
	got, err := LatestFinishedTradingDay(cal, time.Date(2024, 5, 10, 12, 0, 0, 0, et))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-09", got.Format(time.DateOnly))

	// After the cutoff today counts.
	got, err = LatestFinishedTradingDay(cal, time.Date(2024, 5, 10, 21, 0, 0, 0, et))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-10", got.Format(time.DateOnly))

	// On a Saturday the Friday session is the latest.
	got, err = LatestFinishedTradingDay(cal, time.Date(2024, 5, 11, 9, 0, 0, 0, et))
	require.NoError(t, err)
	assert.Equal(t, "2024-05-10", got.Format(time.DateOnly))

	_, err = LatestFinishedTradingDay(&fakeCalendar{}, time.Now())
	assert.Error(t, err)
}

func TestStoreSource(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	ctx := context.Background()
	r := DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 31)}
	mock, err := NewMockSource(42).Bars(ctx, "AAPL", "us", r)
	require.NoError(t, err)
	require.NoError(t, ps.WriteBars(ctx, "us", mock))

	src := NewStoreSource(ps)
	got, err := src.Bars(ctx, "aapl", "us", r)
	require.NoError(t, err)
	assert.Len(t, got, len(mock))

	_, err = src.Bars(ctx, "MSFT", "us", r)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCachedSourceFillsThenHits(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	ctx := context.Background()
	upstream := &countingSource{Source: NewMockSource(42)}
	src := NewCachedSource(ps, upstream, nil)
	src.now = func() time.Time { return day(2025, 1, 1) }

	r := DateRange{Start: day(2024, 1, 1), End: day(2024, 6, 30)}
	first, err := src.Bars(ctx, "AAPL", "us", r)
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls)

	second, err := src.Bars(ctx, "AAPL", "us", r)
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls, "second request should be served from the store")
	require.Len(t, second, len(first))
	assert.Equal(t, first[10].Close, second[10].Close)

	// A wider range is not covered and goes upstream again.
	_, err = src.Bars(ctx, "AAPL", "us", DateRange{Start: day(2023, 1, 1), End: day(2024, 6, 30)})
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedSourceRefetchesInteriorGap(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	ctx := context.Background()
	upstream := &countingSource{Source: NewMockSource(42)}
	src := NewCachedSource(ps, upstream, nil)
	src.now = func() time.Time { return day(2025, 1, 1) }

	_, err := src.Bars(ctx, "AAPL", "us", DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 31)})
	require.NoError(t, err)
	_, err = src.Bars(ctx, "AAPL", "us", DateRange{Start: day(2024, 12, 1), End: day(2024, 12, 31)})
	require.NoError(t, err)
	require.Equal(t, 2, upstream.calls)

	// Both ends are cached but February through November are not.
	got, err := src.Bars(ctx, "AAPL", "us", DateRange{Start: day(2024, 1, 1), End: day(2024, 12, 31)})
	require.NoError(t, err)
	assert.Equal(t, 3, upstream.calls, "a range with a hole must go upstream")
	for i := 1; i < len(got); i++ {
		gap := got[i].Timestamp.Sub(got[i-1].Timestamp)
		assert.LessOrEqual(t, gap, coverageSlack, "gap before %s", got[i].Timestamp.Format("2006-01-02"))
	}

	// The filled year is now contiguous and served from the store.
	_, err = src.Bars(ctx, "AAPL", "us", DateRange{Start: day(2024, 1, 1), End: day(2024, 12, 31)})
	require.NoError(t, err)
	assert.Equal(t, 3, upstream.calls)
}

func TestNewSource(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())

	cfg := config.Default()
	cfg.Backtest.Source = config.SourceMock
	src, err := NewSource(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", src.Name())

	cfg.Backtest.Source = config.SourceStore
	src, err = NewSource(cfg, ps, nil)
	require.NoError(t, err)
	assert.Equal(t, "store", src.Name())

	_, err = NewSource(cfg, nil, nil)
	assert.Error(t, err, "store source without a store")

	cfg.Backtest.Source = config.SourceAlpaca
	_, err = NewSource(cfg, nil, nil)
	assert.Error(t, err, "alpaca source without credentials")

	cfg.Alpaca.APIKey, cfg.Alpaca.APISecret = "k", "s"
	src, err = NewSource(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "alpaca", src.Name())

	cfg.Backtest.Source = config.SourceCached
	src, err = NewSource(cfg, ps, nil)
	require.NoError(t, err)
	assert.Equal(t, "cached", src.Name())

	cfg.Backtest.Source = "ftp"
	_, err = NewSource(cfg, ps, nil)
	assert.Error(t, err)
}
