package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoFrame means the source has nothing new this tick.
	ErrNoFrame = errors.New("no new frame")
	// ErrNoResult means the frame holds no readable QR code.
	ErrNoResult = errors.New("no qr code detected")
	// ErrCameraUnavailable means the frame source could not be opened or read.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrStopped is returned when running a loop that was already stopped.
	ErrStopped = errors.New("scanner stopped")
	// ErrZoomLevel rejects zoom levels outside 1.0..3.0.
	ErrZoomLevel = errors.New("zoom level must be between 1.0 and 3.0")
)

// FrameSource produces camera frames. Close releases the device.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Decoder turns a frame into QR text, or ErrNoResult.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// ZoomRange is the zoom capability reported by a source.
type ZoomRange struct {
	Min, Max float64
}

// Zoomer is implemented by sources that can zoom.
type Zoomer interface {
	ZoomRange() (ZoomRange, bool)
	ApplyZoom(v float64) error
}

// Handler receives each decoded QR text. Returning stop ends Run.
// A Handler must not call Stop; it returns stop instead.
type Handler func(ctx context.Context, text string) (stop bool, err error)

// Loop samples one frame per tick, decodes it and hands results to a Handler.
// Ticks missed while a frame is being processed are dropped.
type Loop struct {
	src      FrameSource
	dec      Decoder
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewLoop creates a loop pacing at fps frames per second.
func NewLoop(src FrameSource, dec Decoder, fps int, log *zap.Logger) *Loop {
	if fps <= 0 {
		fps = 15
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		src:      src,
		dec:      dec,
		interval: time.Second / time.Duration(fps),
		log:      log,
	}
}

// Run scans until the handler stops, ctx ends, Stop is called or the source fails.
// It returns nil when ended by the handler or by Stop.
func (l *Loop) Run(ctx context.Context, h Handler) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	if l.done != nil {
		l.mu.Unlock()
		return errors.New("scanner already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done
	l.mu.Unlock()

	defer func() {
		cancel()
		l.mu.Lock()
		l.cancel, l.done = nil, nil
		l.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if l.isStopped() {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}

		img, err := l.src.Next(ctx)
		switch {
		case errors.Is(err, ErrNoFrame):
			continue
		case err != nil:
			if ctx.Err() != nil && l.isStopped() {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		text, err := l.dec.Decode(img)
		if err != nil {
			if !errors.Is(err, ErrNoResult) {
				l.log.Debug("decode failed", zap.Error(err))
			}
			continue
		}

		stop, err := h(ctx, text)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

func (l *Loop) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Stop cancels the pending tick, waits for Run to return and releases the source.
// It is safe to call more than once.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return l.src.Close()
}

// SetZoom maps level (1.0..3.0) linearly onto the source's zoom range.
// Sources without zoom support ignore it.
func (l *Loop) SetZoom(level float64) error {
	if level < 1 || level > 3 {
		return ErrZoomLevel
	}
	z, ok := l.src.(Zoomer)
	if !ok {
		l.log.Info("zoom not supported by this source")
		return nil
	}
	r, ok := z.ZoomRange()
	if !ok {
		l.log.Info("zoom not supported by this source")
		return nil
	}
	v := ZoomValue(r, level)
	if err := z.ApplyZoom(v); err != nil {
		l.log.Info("zoom not supported by this source", zap.Error(err))
	}
	return nil
}

// ZoomValue maps a 1.0..3.0 level onto r.
func ZoomValue(r ZoomRange, level float64) float64 {
	return r.Min + (r.Max-r.Min)*(level-1)/2
}
