package attendance

import (
	"fmt"
	"strings"
)

// Intent is the student's choice sampled together with the scan.
type Intent string

const (
	IntentExit  Intent = "exit"
	IntentBreak Intent = "break"
)

// ParseIntent accepts "exit", "break" or empty (exit).
func ParseIntent(s string) (Intent, error) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case "", IntentExit:
		return IntentExit, nil
	case IntentBreak:
		return IntentBreak, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidIntent, s)
	}
}

// Status is the outcome of one scan, shown to the student.
type Status string

const (
	StatusEnteredFirst     Status = "entered_first"
	StatusEntered          Status = "entered"
	StatusAlreadyExited    Status = "already_exited"
	StatusBreakStarted     Status = "break_started"
	StatusBreakEnded       Status = "break_ended"
	StatusBreakUnavailable Status = "break_unavailable"
	StatusExited           Status = "exited"
)

// Mutates reports whether the status implies a write to the store.
func (s Status) Mutates() bool {
	return s != StatusAlreadyExited && s != StatusBreakUnavailable
}

// ApplyScan computes the next day record for a scan. today may be nil when no
// one has scanned yet; it is never modified. date and day label a new record.
//
// Branch priority: a recorded exit is terminal, an open break is closed before
// a new one opens, an explicit break request comes next, and exit is the default.
func ApplyScan(id Identity, p ScanPayload, intent Intent, today *DayRecord, date, day string) (DayRecord, Status, error) {
	fresh := AttendanceEntry{
		StudentName:      id.Name,
		StudentRoll:      id.Roll,
		StudentEntryTime: p.Time,
	}

	if today == nil {
		return DayRecord{Date: date, Day: day, Present: []AttendanceEntry{fresh}}, StatusEnteredFirst, nil
	}

	next := today.Clone()
	i := next.Find(id.Roll)
	if i < 0 {
		next.Present = append(next.Present, fresh)
		return next, StatusEntered, nil
	}

	entry := &next.Present[i]
	if err := entry.Validate(); err != nil {
		return *today, "", err
	}
	at := p.Time

	switch {
	case entry.State() == StateDeparted:
		return next, StatusAlreadyExited, nil
	case entry.State() == StateOnBreak:
		entry.BreakEndTime = &at
		return next, StatusBreakEnded, nil
	case intent == IntentBreak && entry.BreakTaken():
		return next, StatusBreakUnavailable, nil
	case intent == IntentBreak:
		entry.BreakStartTime = &at
		return next, StatusBreakStarted, nil
	default:
		entry.StudentExitTime = &at
		return next, StatusExited, nil
	}
}
