package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge/voicebridge/internal/config"
)

type fakeFreeBusy struct {
	busy []BusyWindow
	err  error
}

func (f *fakeFreeBusy) BusyWindows(context.Context, string, time.Time, time.Time) ([]BusyWindow, error) {
	return f.busy, f.err
}

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func TestCalendarAdapterProposesFreeSlots(t *testing.T) {
	loc := chicago(t)
	// A Monday morning, before business hours.
	morning := time.Date(2026, 3, 2, 8, 0, 0, 0, loc)

	src := &fakeFreeBusy{busy: []BusyWindow{
		{
			Start: time.Date(2026, 3, 2, 9, 0, 0, 0, loc),
			End:   time.Date(2026, 3, 2, 10, 0, 0, 0, loc),
		},
	}}
	a, err := newCalendarAdapter(src, config.CalendarConfig{CalendarID: "primary", SlotMinutes: 30}, testLogger())
	require.NoError(t, err)
	a.now = func() time.Time { return morning }

	out, err := a.Perform(context.Background(), Invocation{Event: testEvent()})
	require.NoError(t, err)

	slots, ok := out.Data["slots"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, slots)
	assert.Len(t, slots, maxProposedSlots)

	// The 9:00-10:00 block is busy, so the first free slot is 10:00.
	first, err := time.Parse(time.RFC3339, slots[0].(string))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, loc).Unix(), first.Unix())

	assert.Equal(t, 30, out.Data["slotMinutes"])
	assert.Equal(t, "America/Chicago", out.Data["timezone"])
}

func TestCalendarAdapterSkipsPastSlots(t *testing.T) {
	loc := chicago(t)
	afternoon := time.Date(2026, 3, 2, 14, 10, 0, 0, loc)

	a, err := newCalendarAdapter(&fakeFreeBusy{}, config.CalendarConfig{CalendarID: "primary"}, testLogger())
	require.NoError(t, err)
	a.now = func() time.Time { return afternoon }

	out, err := a.Perform(context.Background(), Invocation{Event: testEvent()})
	require.NoError(t, err)

	slots := out.Data["slots"].([]any)
	require.NotEmpty(t, slots)
	first, err := time.Parse(time.RFC3339, slots[0].(string))
	require.NoError(t, err)
	// 14:00 already started; the next candidate is 14:30.
	assert.Equal(t, time.Date(2026, 3, 2, 14, 30, 0, 0, loc).Unix(), first.Unix())
}

func TestCalendarAdapterClassifiesErrors(t *testing.T) {
	a, err := newCalendarAdapter(&fakeFreeBusy{err: context.DeadlineExceeded}, config.CalendarConfig{}, testLogger())
	require.NoError(t, err)

	_, err = a.Perform(context.Background(), Invocation{Event: testEvent()})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCalendarAdapterRejectsBadTimezone(t *testing.T) {
	_, err := newCalendarAdapter(&fakeFreeBusy{}, config.CalendarConfig{Timezone: "Mars/Olympus"}, testLogger())
	assert.Error(t, err)
}

func TestFreeSlotsFullyBusyDay(t *testing.T) {
	loc := chicago(t)
	morning := time.Date(2026, 3, 2, 8, 0, 0, 0, loc)
	busy := []BusyWindow{{
		Start: time.Date(2026, 3, 2, 9, 0, 0, 0, loc),
		End:   time.Date(2026, 3, 2, 17, 0, 0, 0, loc),
	}}

	slots := freeSlots(morning, 1, 30*time.Minute, loc, busy)
	assert.Empty(t, slots)
}
