package attendance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the wire format of scan times, e.g. "09:05:00".
const TimeLayout = "15:04:05"

// Identity is a roster member resolved at sign-in.
type Identity struct {
	Name  string `json:"name" firestore:"name"`
	Roll  string `json:"roll" firestore:"roll"`
	Email string `json:"email" firestore:"email"`
}

// ScanPayload is the decoded content of an attendance QR code.
type ScanPayload struct {
	Time string `json:"time"`
}

// ParsePayload decodes the JSON text carried by a QR code.
func ParsePayload(raw string) (ScanPayload, error) {
	var p ScanPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return ScanPayload{}, fmt.Errorf("%w: %v", ErrPayloadParse, err)
	}
	if p.Time == "" {
		return ScanPayload{}, fmt.Errorf("%w: missing time", ErrPayloadParse)
	}
	// time.Parse accepts a one-digit hour and fractional seconds; the stored text must be exact
	if t, err := time.Parse(TimeLayout, p.Time); err != nil || t.Format(TimeLayout) != p.Time {
		return ScanPayload{}, fmt.Errorf("%w: time %q is not HH:MM:SS", ErrPayloadParse, p.Time)
	}
	return p, nil
}

// AttendanceEntry is one student's attendance within a DayRecord.
type AttendanceEntry struct {
	StudentName      string  `json:"studentName" firestore:"studentName"`
	StudentRoll      string  `json:"studentRoll" firestore:"studentRoll"`
	StudentEntryTime string  `json:"studentEntryTime" firestore:"studentEntryTime"`
	StudentExitTime  *string `json:"studentExitTime,omitempty" firestore:"studentExitTime,omitempty"`
	BreakStartTime   *string `json:"breakStartTime,omitempty" firestore:"breakStartTime,omitempty"`
	BreakEndTime     *string `json:"breakEndTime,omitempty" firestore:"breakEndTime,omitempty"`
}

// State is derived from which time fields are set.
type State string

const (
	StateNotArrived State = "not_arrived"
	StatePresent    State = "present"
	StateOnBreak    State = "on_break"
	StateDeparted   State = "departed"
)

// State reports where the entry sits in the day's lifecycle.
func (e *AttendanceEntry) State() State {
	switch {
	case e == nil || e.StudentEntryTime == "":
		return StateNotArrived
	case e.StudentExitTime != nil:
		return StateDeparted
	case e.BreakStartTime != nil && e.BreakEndTime == nil:
		return StateOnBreak
	default:
		return StatePresent
	}
}

// BreakTaken reports whether the single break slot has been used.
func (e *AttendanceEntry) BreakTaken() bool {
	return e.BreakStartTime != nil
}

// Validate rejects field combinations the state machine never produces.
func (e *AttendanceEntry) Validate() error {
	if e.StudentRoll == "" {
		return fmt.Errorf("%w: empty roll", ErrCorruptEntry)
	}
	if e.StudentEntryTime == "" {
		return fmt.Errorf("%w: %s has no entry time", ErrCorruptEntry, e.StudentRoll)
	}
	if e.BreakEndTime != nil && e.BreakStartTime == nil {
		return fmt.Errorf("%w: %s ended a break that never started", ErrCorruptEntry, e.StudentRoll)
	}
	return nil
}

// DayRecord is the attendance document for one calendar date.
// Version is the store's optimistic-lock counter and is not part of the document body.
type DayRecord struct {
	Date    string            `json:"Date" firestore:"Date"`
	Day     string            `json:"Day" firestore:"Day"`
	Present []AttendanceEntry `json:"Present" firestore:"Present"`
	Version int64             `json:"-" firestore:"Version"`
}

// Find returns the index of the roll in Present, or -1.
func (d *DayRecord) Find(roll string) int {
	for i := range d.Present {
		if d.Present[i].StudentRoll == roll {
			return i
		}
	}
	return -1
}

// Clone deep-copies the record so callers can mutate it freely.
func (d *DayRecord) Clone() DayRecord {
	out := DayRecord{Date: d.Date, Day: d.Day, Version: d.Version}
	out.Present = make([]AttendanceEntry, len(d.Present))
	for i, e := range d.Present {
		out.Present[i] = AttendanceEntry{
			StudentName:      e.StudentName,
			StudentRoll:      e.StudentRoll,
			StudentEntryTime: e.StudentEntryTime,
			StudentExitTime:  cloneString(e.StudentExitTime),
			BreakStartTime:   cloneString(e.BreakStartTime),
			BreakEndTime:     cloneString(e.BreakEndTime),
		}
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// DayKey formats t as dd/mm/yyyy in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("02/01/2006")
}

// DayName is the English weekday name of t in loc.
func DayName(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Weekday().String()
}
