package attendance

import "errors"

var (
	// ErrPayloadParse means the QR text is not a scan payload; the scan is skipped.
	ErrPayloadParse = errors.New("invalid scan payload")
	// ErrDayNotFound is returned by a DayStore when no record exists for the date.
	ErrDayNotFound = errors.New("day record not found")
	// ErrVersionConflict means the day record changed between read and write.
	ErrVersionConflict = errors.New("day record modified concurrently")
	// ErrStoreUnavailable wraps any other failure of the document store.
	ErrStoreUnavailable = errors.New("attendance store unavailable")
	// ErrCorruptEntry flags a stored entry the state machine cannot interpret.
	ErrCorruptEntry = errors.New("corrupt attendance entry")
	// ErrInvalidIntent is returned for an unknown scan intent.
	ErrInvalidIntent = errors.New("invalid scan intent")
)
