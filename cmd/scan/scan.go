package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"qrattend/internal/attendance"
	"qrattend/internal/client"
	"qrattend/internal/scanner"
)

// scan runs the capture loop over src and submits each attendance QR code.
// With once set it returns after the first recorded scan.
func scan(ctx context.Context, cmd *cli.Command, src scanner.FrameSource, once bool, zoom float64) error {
	c, saved, err := signedIn(cmd)
	if err != nil {
		_ = src.Close()
		return err
	}
	intent, err := attendance.ParseIntent(cmd.String("intent"))
	if err != nil {
		_ = src.Close()
		return err
	}

	loop := scanner.NewLoop(src, scanner.NewQRDecoder(), int(cmd.Int("fps")), newLogger(cmd))
	defer func() { _ = loop.Stop() }()
	if zoom != 1 {
		if err := loop.SetZoom(zoom); err != nil {
			return err
		}
	}

	w := cmd.Root().Writer
	fmt.Fprintf(w, "Scanning as %s (%s). Ctrl-C to stop.\n", saved.Student.Name, saved.Student.Roll)

	var last string
	err = loop.Run(ctx, func(ctx context.Context, text string) (bool, error) {
		if text == last {
			// same code still in front of the camera
			return false, nil
		}
		last = text
		if _, err := attendance.ParsePayload(text); err != nil {
			fmt.Fprintln(w, "Not an attendance QR code, keep scanning.")
			return false, nil
		}
		res, err := c.Scan(ctx, text, intent)
		if errors.Is(err, client.ErrUnauthorized) {
			if path, perr := sessionPath(cmd); perr == nil {
				_ = client.ClearSession(path)
			}
			return true, fmt.Errorf("%w, run `scan login` again", err)
		}
		if err != nil {
			return true, err
		}
		fmt.Fprintln(w, describe(saved.Student, res))
		return once, nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func describe(id attendance.Identity, res *attendance.Result) string {
	e := res.Entry
	switch res.Status {
	case attendance.StatusEnteredFirst, attendance.StatusEntered:
		return fmt.Sprintf("Welcome %s, entry recorded at %s.", id.Name, e.StudentEntryTime)
	case attendance.StatusBreakStarted:
		return fmt.Sprintf("Break started at %s.", deref(e.BreakStartTime))
	case attendance.StatusBreakEnded:
		return fmt.Sprintf("Welcome back, break ended at %s.", deref(e.BreakEndTime))
	case attendance.StatusBreakUnavailable:
		return "You already took your break today."
	case attendance.StatusExited:
		return fmt.Sprintf("Goodbye %s, exit recorded at %s.", id.Name, deref(e.StudentExitTime))
	case attendance.StatusAlreadyExited:
		return "You have already exited for today."
	default:
		return string(res.Status)
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
