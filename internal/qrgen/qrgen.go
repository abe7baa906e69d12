// Package qrgen renders the time QR codes shown on the classroom display.
package qrgen

import (
	"encoding/json"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"qrattend/internal/attendance"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 300

// Payload returns the QR text for t, e.g. {"time":"09:15:00"}.
func Payload(t time.Time) string {
	b, _ := json.Marshal(attendance.ScanPayload{Time: t.Format(attendance.TimeLayout)})
	return string(b)
}

// PNG encodes the payload for t as a size x size PNG.
func PNG(t time.Time, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(Payload(t), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
