package marketdata

import (
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// calendarClient is the subset of the Alpaca trading client used here.
type calendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// NewCalendarClient returns an Alpaca trading client for calendar lookups.
func NewCalendarClient(apiKey, apiSecret, baseURL string) *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

// LatestFinishedTradingDay returns the most recent trading day whose session
// has ended as of now, counting a day as finished after 20:05 ET so that
// extended-hours bars have settled.
func LatestFinishedTradingDay(cal calendarClient, now time.Time) (time.Time, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now = now.In(et)

	days, err := cal.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -10),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(days) == 0 {
		return time.Time{}, errors.New("no trading days returned from calendar")
	}

	today := now.Format(time.DateOnly)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, et)

	for i := len(days) - 1; i >= 0; i-- {
		day, err := time.Parse(time.DateOnly, days[i].Date)
		if err != nil {
			continue
		}
		switch {
		case days[i].Date == today:
			if now.After(cutoff) {
				return day, nil
			}
		case days[i].Date < today:
			return day, nil
		}
	}
	return time.Time{}, errors.New("could not determine latest finished trading day")
}
