package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"qrattend/internal/events"
	"qrattend/internal/metrics"
)

// DayStore persists one DayRecord per date with optimistic locking.
//
// Get returns ErrDayNotFound when nothing is stored for the date; the returned
// record carries the stored Version. Put must succeed only when the stored
// version still equals rec.Version (0 meaning "must not exist") and then stores
// rec.Version+1; otherwise it returns ErrVersionConflict.
type DayStore interface {
	Get(ctx context.Context, date string) (*DayRecord, error)
	Put(ctx context.Context, rec DayRecord) error
}

// Publisher receives a notification for every recorded scan.
type Publisher interface {
	Publish(ctx context.Context, evt events.Event) error
}

// Scan is one decoded QR code together with who scanned it and what they meant.
type Scan struct {
	Identity Identity
	Payload  ScanPayload
	Intent   Intent
	At       time.Time
}

// Result is what a scan did to the day record.
type Result struct {
	Status Status          `json:"status"`
	State  State           `json:"state"`
	Date   string          `json:"date"`
	Entry  AttendanceEntry `json:"entry"`
	Record DayRecord       `json:"-"`
}

// Service runs the read-modify-write cycle of a scan against a DayStore.
type Service struct {
	store    DayStore
	pub      Publisher
	loc      *time.Location
	attempts uint
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where recorded scans are announced.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithLocation sets the time zone used to pick the calendar day.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithAttempts bounds how often a conflicting write is re-run.
func WithAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.attempts = uint(n)
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service backed by a DayStore.
func NewService(store DayStore, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:    store,
		loc:      time.Local,
		attempts: 5,
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

// DayKey is the record key for the day containing at in the service's location.
func (s *Service) DayKey(at time.Time) string { return DayKey(at, s.loc) }

// Record applies a scan and persists the resulting day record.
func (s *Service) Record(ctx context.Context, scan Scan) (Result, error) {
	if scan.Identity.Roll == "" {
		return Result{}, errors.New("identity has no roll")
	}
	if scan.Intent == "" {
		scan.Intent = IntentExit
	}
	if scan.At.IsZero() {
		scan.At = s.now()
	}
	started := time.Now()
	date := DayKey(scan.At, s.loc)
	day := DayName(scan.At, s.loc)

	var res Result
	err := retry.Do(
		func() error {
			current, err := s.store.Get(ctx, date)
			if err != nil && !errors.Is(err, ErrDayNotFound) {
				return err
			}
			if errors.Is(err, ErrDayNotFound) {
				current = nil
			}

			next, status, err := ApplyScan(scan.Identity, scan.Payload, scan.Intent, current, date, day)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if status.Mutates() {
				if current != nil {
					next.Version = current.Version
				}
				if err := s.store.Put(ctx, next); err != nil {
					if errors.Is(err, ErrVersionConflict) {
						metrics.StoreConflicts.Inc()
						s.log.Debug("day record conflict, re-reading", zap.String("date", date), zap.String("roll", scan.Identity.Roll))
					}
					return err
				}
				next.Version++
			}

			i := next.Find(scan.Identity.Roll)
			res = Result{Status: status, Date: date, Record: next}
			if i >= 0 {
				res.Entry = next.Present[i]
				res.State = next.Present[i].State()
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(5*time.Millisecond),
		retry.MaxJitter(20*time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrVersionConflict) }),
		retry.LastErrorOnly(true),
	)
	metrics.ScanDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrCorruptEntry), errors.Is(err, context.Canceled):
			metrics.Scans.WithLabelValues("error").Inc()
			return Result{}, err
		default:
			metrics.Scans.WithLabelValues("store_unavailable").Inc()
			s.log.Error("attendance store write failed",
				zap.String("date", date), zap.String("roll", scan.Identity.Roll), zap.Error(err))
			return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	metrics.Scans.WithLabelValues(string(res.Status)).Inc()
	s.log.Info("scan recorded",
		zap.String("date", date),
		zap.String("roll", scan.Identity.Roll),
		zap.String("status", string(res.Status)),
		zap.String("time", scan.Payload.Time))
	s.announce(ctx, scan, res)
	return res, nil
}

func (s *Service) announce(ctx context.Context, scan Scan, res Result) {
	if s.pub == nil {
		return
	}
	evt := events.Event{
		Type:   events.TypeScanRecorded,
		Date:   res.Date,
		Roll:   scan.Identity.Roll,
		Name:   scan.Identity.Name,
		Status: string(res.Status),
		Time:   scan.Payload.Time,
	}
	if err := s.pub.Publish(ctx, evt); err != nil {
		s.log.Warn("publish scan event failed", zap.Error(err))
	}
}

// Today returns the day record for the calendar day containing at.
func (s *Service) Today(ctx context.Context, at time.Time) (*DayRecord, error) {
	rec, err := s.store.Get(ctx, DayKey(at, s.loc))
	if err != nil {
		if errors.Is(err, ErrDayNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

// Entry returns one student's entry for the day containing at, or ErrDayNotFound.
func (s *Service) Entry(ctx context.Context, at time.Time, roll string) (*AttendanceEntry, error) {
	rec, err := s.Today(ctx, at)
	if err != nil {
		return nil, err
	}
	i := rec.Find(roll)
	if i < 0 {
		return nil, ErrDayNotFound
	}
	e := rec.Present[i]
	return &e, nil
}
