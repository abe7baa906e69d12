package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var errSourceClosed = errors.New("frame source closed")

// SnapshotDir reads the newest image in a directory that an external capture
// process keeps overwriting, e.g. `ffmpeg -f v4l2 -i /dev/video0 -update 1 frame.jpg`.
// It offers digital zoom by cropping the centre of each frame.
type SnapshotDir struct {
	dir string

	mu       sync.Mutex
	lastName string
	lastMod  time.Time
	zoom     float64
	closed   bool
}

// OpenSnapshotDir checks that dir is readable.
func OpenSnapshotDir(dir string) (*SnapshotDir, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCameraUnavailable, dir)
	}
	if _, err := os.ReadDir(dir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	return &SnapshotDir{dir: dir, zoom: 1}, nil
}

// Next returns the newest frame if it changed since the last call.
func (s *SnapshotDir) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSourceClosed
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	var (
		name string
		mod  time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(mod) {
			name, mod = e.Name(), info.ModTime()
		}
	}
	if name == "" || (name == s.lastName && mod.Equal(s.lastMod)) {
		return nil, ErrNoFrame
	}

	img, err := decodeFile(filepath.Join(s.dir, name))
	if err != nil {
		// the capture process may be mid-write; try again next tick
		return nil, ErrNoFrame
	}
	s.lastName, s.lastMod = name, mod
	return crop(img, s.zoom), nil
}

// ZoomRange reports the digital zoom range.
func (s *SnapshotDir) ZoomRange() (ZoomRange, bool) {
	return ZoomRange{Min: 1, Max: 4}, true
}

// ApplyZoom sets the crop factor.
func (s *SnapshotDir) ApplyZoom(v float64) error {
	if v < 1 {
		return fmt.Errorf("zoom %v below 1", v)
	}
	s.mu.Lock()
	s.zoom = v
	s.mu.Unlock()
	return nil
}

// Close stops handing out frames.
func (s *SnapshotDir) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Files yields each image file once, then io.EOF.
type Files struct {
	mu     sync.Mutex
	paths  []string
	closed bool
}

// NewFiles creates a source over paths.
func NewFiles(paths ...string) *Files {
	return &Files{paths: paths}
}

// Next decodes the next file.
func (f *Files) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errSourceClosed
	}
	if len(f.paths) == 0 {
		return nil, io.EOF
	}
	p := f.paths[0]
	f.paths = f.paths[1:]
	img, err := decodeFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	return img, nil
}

// Close stops handing out frames.
func (f *Files) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func decodeFile(path string) (image.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	return img, err
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop keeps the centre 1/zoom of img.
func crop(img image.Image, zoom float64) image.Image {
	if zoom <= 1 {
		return img
	}
	si, ok := img.(subImager)
	if !ok {
		return img
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) / zoom)
	h := int(float64(b.Dy()) / zoom)
	if w < 1 || h < 1 {
		return img
	}
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	return si.SubImage(image.Rect(x0, y0, x0+w, y0+h))
}
