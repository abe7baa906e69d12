package attendance_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/events"
	"qrattend/internal/store"
)

var morning = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

func newService(days attendance.DayStore, opts ...attendance.Option) *attendance.Service {
	opts = append([]attendance.Option{attendance.WithLocation(time.UTC)}, opts...)
	return attendance.NewService(days, nil, opts...)
}

func scanOf(id attendance.Identity, t string, intent attendance.Intent) attendance.Scan {
	return attendance.Scan{Identity: id, Payload: attendance.ScanPayload{Time: t}, Intent: intent, At: morning}
}

func TestRecordPersists(t *testing.T) {
	days := store.NewMemoryDays()
	svc := newService(days)
	ctx := context.Background()
	id := attendance.Identity{Name: "Asha", Roll: "R1"}

	res, err := svc.Record(ctx, scanOf(id, "09:00:00", attendance.IntentExit))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusEnteredFirst, res.Status)
	assert.Equal(t, "05/03/2024", res.Date)
	assert.Equal(t, int64(1), res.Record.Version)

	res, err = svc.Record(ctx, scanOf(id, "15:00:00", attendance.IntentExit))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusExited, res.Status)

	rec, err := svc.Today(ctx, morning)
	require.NoError(t, err)
	assert.Equal(t, "Tuesday", rec.Day)
	require.Len(t, rec.Present, 1)
	assert.Equal(t, "15:00:00", *rec.Present[0].StudentExitTime)
	assert.Equal(t, int64(2), rec.Version)

	// terminal scans do not write
	res, err = svc.Record(ctx, scanOf(id, "16:00:00", attendance.IntentExit))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAlreadyExited, res.Status)
	rec, _ = svc.Today(ctx, morning)
	assert.Equal(t, int64(2), rec.Version)

	e, err := svc.Entry(ctx, morning, "R1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StateDeparted, e.State())

	_, err = svc.Entry(ctx, morning, "R9")
	assert.ErrorIs(t, err, attendance.ErrDayNotFound)
}

// racingDays lets a competing writer slip in before the first n writes.
type racingDays struct {
	*store.MemoryDays
	mu     sync.Mutex
	n      int
	rival  attendance.Identity
	puts   int
	failed int
}

func (r *racingDays) Put(ctx context.Context, rec attendance.DayRecord) error {
	r.mu.Lock()
	r.puts++
	race := r.n > 0
	if race {
		r.n--
	}
	r.mu.Unlock()

	if race {
		cur, err := r.MemoryDays.Get(ctx, rec.Date)
		if errors.Is(err, attendance.ErrDayNotFound) {
			cur = nil
		} else if err != nil {
			return err
		}
		next, _, err := attendance.ApplyScan(r.rival, attendance.ScanPayload{Time: "08:59:59"}, attendance.IntentExit, cur, rec.Date, rec.Day)
		if err != nil {
			return err
		}
		if cur != nil {
			next.Version = cur.Version
		}
		if err := r.MemoryDays.Put(ctx, next); err != nil {
			return err
		}
	}
	err := r.MemoryDays.Put(ctx, rec)
	if errors.Is(err, attendance.ErrVersionConflict) {
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
	}
	return err
}

func TestRecordRerunsOnConflict(t *testing.T) {
	days := &racingDays{MemoryDays: store.NewMemoryDays(), n: 2, rival: attendance.Identity{Name: "Ravi", Roll: "R2"}}
	svc := newService(days)

	res, err := svc.Record(context.Background(), scanOf(attendance.Identity{Name: "Asha", Roll: "R1"}, "09:00:00", attendance.IntentExit))
	require.NoError(t, err)
	assert.Equal(t, 2, days.failed)
	assert.Equal(t, 3, days.puts)
	// the rival's write is kept and ours lands on top of it
	assert.Equal(t, attendance.StatusEntered, res.Status)
	require.Len(t, res.Record.Present, 2)
	assert.Equal(t, "R2", res.Record.Present[0].StudentRoll)
	assert.Equal(t, "R1", res.Record.Present[1].StudentRoll)
}

func TestRecordConflictExhausted(t *testing.T) {
	days := &racingDays{MemoryDays: store.NewMemoryDays(), n: 10, rival: attendance.Identity{Name: "Ravi", Roll: "R2"}}
	svc := newService(days, attendance.WithAttempts(3))

	_, err := svc.Record(context.Background(), scanOf(attendance.Identity{Name: "Asha", Roll: "R1"}, "09:00:00", attendance.IntentExit))
	assert.ErrorIs(t, err, attendance.ErrVersionConflict)
	assert.Equal(t, 3, days.puts)
}

func TestConcurrentScansAreAllKept(t *testing.T) {
	days := store.NewMemoryDays()
	svc := newService(days, attendance.WithAttempts(100))
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := attendance.Identity{Name: fmt.Sprintf("S%d", i), Roll: fmt.Sprintf("R%02d", i)}
			_, err := svc.Record(ctx, scanOf(id, "09:00:00", attendance.IntentExit))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := svc.Today(ctx, morning)
	require.NoError(t, err)
	assert.Len(t, rec.Present, n)
}

// countingDays counts store calls.
type countingDays struct {
	*store.MemoryDays
	gets, puts int
}

func (c *countingDays) Get(ctx context.Context, date string) (*attendance.DayRecord, error) {
	c.gets++
	return c.MemoryDays.Get(ctx, date)
}

func (c *countingDays) Put(ctx context.Context, rec attendance.DayRecord) error {
	c.puts++
	return c.MemoryDays.Put(ctx, rec)
}

func TestRecordCorruptEntryIsNotRetried(t *testing.T) {
	mem := store.NewMemoryDays()
	end := "10:20:00"
	require.NoError(t, mem.Put(context.Background(), attendance.DayRecord{
		Date: "05/03/2024",
		Day:  "Tuesday",
		Present: []attendance.AttendanceEntry{
			{StudentName: "Asha", StudentRoll: "R1", StudentEntryTime: "09:00:00", BreakEndTime: &end},
		},
	}))
	days := &countingDays{MemoryDays: mem}
	svc := newService(days)

	_, err := svc.Record(context.Background(), scanOf(attendance.Identity{Name: "Asha", Roll: "R1"}, "11:00:00", attendance.IntentExit))
	require.ErrorIs(t, err, attendance.ErrCorruptEntry)
	assert.NotErrorIs(t, err, attendance.ErrStoreUnavailable)
	assert.Equal(t, 1, days.gets, "a corrupt entry is not re-read")
	assert.Zero(t, days.puts)

	rec, err := mem.Get(context.Background(), "05/03/2024")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
	assert.Nil(t, rec.Present[0].StudentExitTime)
}

type downDays struct{}

func (downDays) Get(context.Context, string) (*attendance.DayRecord, error) {
	return nil, nil
}

func (downDays) Put(context.Context, attendance.DayRecord) error {
	return errors.New("dial tcp: connection refused")
}

func TestStoreFailureIsReported(t *testing.T) {
	svc := newService(downDays{})
	_, err := svc.Record(context.Background(), scanOf(attendance.Identity{Name: "Asha", Roll: "R1"}, "09:00:00", attendance.IntentExit))
	require.ErrorIs(t, err, attendance.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRecordPublishes(t *testing.T) {
	bus := events.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	svc := newService(store.NewMemoryDays(), attendance.WithPublisher(bus))
	_, err = svc.Record(ctx, scanOf(attendance.Identity{Name: "Asha", Roll: "R1"}, "09:00:00", attendance.IntentExit))
	require.NoError(t, err)

	select {
	case evt := <-ch:
		assert.Equal(t, events.TypeScanRecorded, evt.Type)
		assert.Equal(t, "R1", evt.Roll)
		assert.Equal(t, string(attendance.StatusEnteredFirst), evt.Status)
		assert.Equal(t, "09:00:00", evt.Time)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}
