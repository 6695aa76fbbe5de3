package adapter

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/domain"
	"github.com/voicebridge/voicebridge/internal/logging"
)

// Business hours for slot proposals, in the calendar's timezone.
const (
	slotDayStartHour = 9
	slotDayEndHour   = 17
	slotHorizonDays  = 3
	maxProposedSlots = 10
)

// BusyWindow is one busy interval reported by the calendar.
type BusyWindow struct {
	Start time.Time
	End   time.Time
}

// FreeBusySource queries busy intervals for one calendar.
type FreeBusySource interface {
	BusyWindows(ctx context.Context, calendarID string, min, max time.Time) ([]BusyWindow, error)
}

// CalendarAdapter proposes free appointment slots by querying the
// calendar's free/busy state.
type CalendarAdapter struct {
	source FreeBusySource
	cfg    config.CalendarConfig
	loc    *time.Location
	now    func() time.Time
	log    *logging.Logger
}

// NewCalendarAdapter builds the Google Calendar backed adapter.
func NewCalendarAdapter(ctx context.Context, cfg config.CalendarConfig, log *logging.Logger) (*CalendarAdapter, error) {
	svc, err := calendar.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return newCalendarAdapter(&calendarSource{svc: svc}, cfg, log)
}

func newCalendarAdapter(source FreeBusySource, cfg config.CalendarConfig, log *logging.Logger) (*CalendarAdapter, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "America/Chicago"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load calendar timezone %q: %w", tz, err)
	}
	return &CalendarAdapter{
		source: source,
		cfg:    cfg,
		loc:    loc,
		now:    time.Now,
		log:    log.Sub("action.calendar"),
	}, nil
}

// Name implements Adapter.
func (a *CalendarAdapter) Name() string { return "calendar" }

// Perform implements Adapter. The outcome lists free slots as RFC 3339
// start times in the calendar's timezone.
func (a *CalendarAdapter) Perform(ctx context.Context, inv Invocation) (domain.Outcome, error) {
	slotLen := time.Duration(a.cfg.SlotMinutes) * time.Minute
	if slotLen <= 0 {
		slotLen = 30 * time.Minute
	}

	now := a.now().In(a.loc)
	min := now
	max := now.AddDate(0, 0, slotHorizonDays)

	busy, err := a.source.BusyWindows(ctx, a.cfg.CalendarID, min, max)
	if err != nil {
		return domain.Outcome{}, Classify("calendar", err)
	}

	slots := freeSlots(now, slotHorizonDays, slotLen, a.loc, busy)
	a.log.Info().Int("slots", len(slots)).Int("busy", len(busy)).Msg("free slots computed")

	formatted := make([]any, 0, len(slots))
	for _, s := range slots {
		formatted = append(formatted, s.Format(time.RFC3339))
	}
	return domain.Outcome{Data: map[string]any{
		"slots":       formatted,
		"slotMinutes": int(slotLen / time.Minute),
		"timezone":    a.loc.String(),
	}}, nil
}

// freeSlots enumerates business-hour slots over the horizon and drops
// any that overlap a busy window or start in the past.
func freeSlots(now time.Time, days int, slotLen time.Duration, loc *time.Location, busy []BusyWindow) []time.Time {
	var slots []time.Time
	for d := 0; d < days && len(slots) < maxProposedSlots; d++ {
		day := now.AddDate(0, 0, d)
		start := time.Date(day.Year(), day.Month(), day.Day(), slotDayStartHour, 0, 0, 0, loc)
		end := time.Date(day.Year(), day.Month(), day.Day(), slotDayEndHour, 0, 0, 0, loc)

		for t := start; t.Add(slotLen).Before(end) || t.Add(slotLen).Equal(end); t = t.Add(slotLen) {
			if t.Before(now) {
				continue
			}
			if overlapsAny(t, t.Add(slotLen), busy) {
				continue
			}
			slots = append(slots, t)
			if len(slots) >= maxProposedSlots {
				break
			}
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []BusyWindow) bool {
	for _, w := range busy {
		if start.Before(w.End) && w.Start.Before(end) {
			return true
		}
	}
	return false
}

type calendarSource struct {
	svc *calendar.Service
}

func (c *calendarSource) BusyWindows(ctx context.Context, calendarID string, min, max time.Time) ([]BusyWindow, error) {
	resp, err := c.svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: min.Format(time.RFC3339),
		TimeMax: max.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, nil
	}
	windows := make([]BusyWindow, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			continue
		}
		windows = append(windows, BusyWindow{Start: start, End: end})
	}
	return windows, nil
}
