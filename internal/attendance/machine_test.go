package attendance

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	asha = Identity{Name: "Asha", Roll: "R1", Email: "asha@example.edu"}
	ravi = Identity{Name: "Ravi", Roll: "R2", Email: "ravi@example.edu"}
)

func at(s string) ScanPayload { return ScanPayload{Time: s} }

func ptr(s string) *string { return &s }

func TestApplyScanFirstOfDay(t *testing.T) {
	rec, status, err := ApplyScan(asha, at("09:00:00"), IntentExit, nil, "05/03/2024", "Tuesday")
	require.NoError(t, err)
	assert.Equal(t, StatusEnteredFirst, status)
	assert.Equal(t, "05/03/2024", rec.Date)
	assert.Equal(t, "Tuesday", rec.Day)
	require.Len(t, rec.Present, 1)
	assert.Equal(t, AttendanceEntry{StudentName: "Asha", StudentRoll: "R1", StudentEntryTime: "09:00:00"}, rec.Present[0])
}

func TestApplyScanNewStudentAppends(t *testing.T) {
	today, _, _ := ApplyScan(asha, at("09:00:00"), IntentExit, nil, "d", "w")
	rec, status, err := ApplyScan(ravi, at("09:05:00"), IntentBreak, &today, "d", "w")
	require.NoError(t, err)
	assert.Equal(t, StatusEntered, status)
	require.Len(t, rec.Present, 2)
	assert.Equal(t, "R1", rec.Present[0].StudentRoll)
	assert.Equal(t, "R2", rec.Present[1].StudentRoll)
	assert.Nil(t, rec.Present[1].BreakStartTime, "intent is ignored on entry")
}

func TestApplyScanTransitions(t *testing.T) {
	base := func(e AttendanceEntry) *DayRecord {
		e.StudentName, e.StudentRoll = asha.Name, asha.Roll
		return &DayRecord{Date: "d", Day: "w", Present: []AttendanceEntry{e}}
	}

	cases := []struct {
		name   string
		entry  AttendanceEntry
		intent Intent
		status Status
		check  func(t *testing.T, e AttendanceEntry)
	}{
		{
			name:   "present exits by default",
			entry:  AttendanceEntry{StudentEntryTime: "09:00:00"},
			intent: IntentExit,
			status: StatusExited,
			check: func(t *testing.T, e AttendanceEntry) {
				require.NotNil(t, e.StudentExitTime)
				assert.Equal(t, "12:00:00", *e.StudentExitTime)
			},
		},
		{
			name:   "present starts break",
			entry:  AttendanceEntry{StudentEntryTime: "09:00:00"},
			intent: IntentBreak,
			status: StatusBreakStarted,
			check: func(t *testing.T, e AttendanceEntry) {
				require.NotNil(t, e.BreakStartTime)
				assert.Equal(t, "12:00:00", *e.BreakStartTime)
				assert.Nil(t, e.StudentExitTime)
			},
		},
		{
			name:   "on break ends break whatever the intent",
			entry:  AttendanceEntry{StudentEntryTime: "09:00:00", BreakStartTime: ptr("11:00:00")},
			intent: IntentExit,
			status: StatusBreakEnded,
			check: func(t *testing.T, e AttendanceEntry) {
				require.NotNil(t, e.BreakEndTime)
				assert.Equal(t, "12:00:00", *e.BreakEndTime)
				assert.Nil(t, e.StudentExitTime)
			},
		},
		{
			name:   "second break is refused",
			entry:  AttendanceEntry{StudentEntryTime: "09:00:00", BreakStartTime: ptr("10:00:00"), BreakEndTime: ptr("10:30:00")},
			intent: IntentBreak,
			status: StatusBreakUnavailable,
			check: func(t *testing.T, e AttendanceEntry) {
				assert.Equal(t, "10:00:00", *e.BreakStartTime)
				assert.Equal(t, "10:30:00", *e.BreakEndTime)
			},
		},
		{
			name:   "after break exits",
			entry:  AttendanceEntry{StudentEntryTime: "09:00:00", BreakStartTime: ptr("10:00:00"), BreakEndTime: ptr("10:30:00")},
			intent: IntentExit,
			status: StatusExited,
			check: func(t *testing.T, e AttendanceEntry) {
				assert.Equal(t, "12:00:00", *e.StudentExitTime)
			},
		},
		{
			name:   "departed is terminal",
			entry:  AttendanceEntry{StudentEntryTime: "09:00:00", StudentExitTime: ptr("11:00:00")},
			intent: IntentBreak,
			status: StatusAlreadyExited,
			check: func(t *testing.T, e AttendanceEntry) {
				assert.Equal(t, "11:00:00", *e.StudentExitTime)
				assert.Nil(t, e.BreakStartTime)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			today := base(tc.entry)
			before := today.Clone()

			rec, status, err := ApplyScan(asha, at("12:00:00"), tc.intent, today, "d", "w")
			require.NoError(t, err)
			assert.Equal(t, tc.status, status)
			require.Len(t, rec.Present, 1)
			assert.Equal(t, "09:00:00", rec.Present[0].StudentEntryTime, "entry time never changes")
			tc.check(t, rec.Present[0])
			assert.Equal(t, before, *today, "input record is not modified")
		})
	}
}

func TestApplyScanCorruptEntry(t *testing.T) {
	today := &DayRecord{Present: []AttendanceEntry{{StudentRoll: "R1", StudentEntryTime: "09:00:00", BreakEndTime: ptr("10:00:00")}}}
	_, _, err := ApplyScan(asha, at("12:00:00"), IntentExit, today, "d", "w")
	assert.ErrorIs(t, err, ErrCorruptEntry)
}

func TestStatusMutates(t *testing.T) {
	assert.False(t, StatusAlreadyExited.Mutates())
	assert.False(t, StatusBreakUnavailable.Mutates())
	assert.True(t, StatusEnteredFirst.Mutates())
	assert.True(t, StatusExited.Mutates())
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload(` {"time":"09:15:00","room":"B12"} `)
	require.NoError(t, err)
	assert.Equal(t, "09:15:00", p.Time)

	for _, raw := range []string{"", "09:15:00", `{"time":""}`, `{"when":"09:15:00"}`, `{"time":"25:00:00"}`, `{"time":"9:15"}`, `[1]`,
		`{"time":"9:15:00"}`, `{"time":"09:15:00.999"}`, `{"time":"09:15:00,5"}`} {
		_, err := ParsePayload(raw)
		assert.True(t, errors.Is(err, ErrPayloadParse), "%q: %v", raw, err)
	}
}

func TestParseIntent(t *testing.T) {
	for in, want := range map[string]Intent{"": IntentExit, "exit": IntentExit, " Break ": IntentBreak} {
		got, err := ParseIntent(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseIntent("lunch")
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestState(t *testing.T) {
	var missing *AttendanceEntry
	assert.Equal(t, StateNotArrived, missing.State())
	assert.Equal(t, StatePresent, (&AttendanceEntry{StudentEntryTime: "09:00:00"}).State())
	assert.Equal(t, StateOnBreak, (&AttendanceEntry{StudentEntryTime: "09:00:00", BreakStartTime: ptr("10:00:00")}).State())
	assert.Equal(t, StateDeparted, (&AttendanceEntry{StudentEntryTime: "09:00:00", StudentExitTime: ptr("11:00:00")}).State())
}

func TestDayKey(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	// 20:00 UTC on the 4th is already the 5th in Kolkata
	ts := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "04/03/2024", DayKey(ts, time.UTC))
	assert.Equal(t, "05/03/2024", DayKey(ts, kolkata))
	assert.Equal(t, "Tuesday", DayName(ts, kolkata))
}
