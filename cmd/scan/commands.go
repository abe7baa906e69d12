package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/client"
	"qrattend/internal/logging"
	"qrattend/internal/qrgen"
	"qrattend/internal/scanner"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "sign in with an identity provider credential",
		ArgsUsage: "CREDENTIAL",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cred := cmd.Args().First()
			if cred == "" {
				return errors.New("credential required")
			}
			path, err := sessionPath(cmd)
			if err != nil {
				return err
			}
			c := client.New(cmd.String("server"), "")
			res, err := c.Login(ctx, cred)
			if err != nil {
				return err
			}
			if err := client.SaveSession(path, client.Saved{
				Server:    cmd.String("server"),
				Token:     res.Token,
				ExpiresAt: res.ExpiresAt,
				Student:   res.Student,
			}); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(cmd.Root().Writer, "Signed in as %s (%s)\n", res.Student.Name, res.Student.Roll)
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "sign out and forget the saved session",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := sessionPath(cmd)
			if err != nil {
				return err
			}
			saved, err := client.LoadSession(path, time.Now())
			if err == nil {
				err = client.New(saved.Server, saved.Token).Logout(ctx)
				if err != nil && !errors.Is(err, client.ErrUnauthorized) {
					return err
				}
			} else if !errors.Is(err, client.ErrNoSession) {
				return err
			}
			if err := client.ClearSession(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, "Signed out")
			return nil
		},
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the signed-in student",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, _, err := signedIn(cmd)
			if err != nil {
				return err
			}
			id, err := c.Me(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "%s (%s) <%s>\n", id.Name, id.Roll, id.Email)
			return nil
		},
	}
}

func todayCommand() *cli.Command {
	return &cli.Command{
		Name:  "today",
		Usage: "show your attendance for today",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, _, err := signedIn(cmd)
			if err != nil {
				return err
			}
			res, err := c.Mine(ctx)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			fmt.Fprintf(w, "%s: %s\n", res.Date, res.State)
			if e := res.Entry; e != nil {
				fmt.Fprintf(w, "  entry  %s\n", e.StudentEntryTime)
				printOpt(w, "  break  ", e.BreakStartTime)
				printOpt(w, "  back   ", e.BreakEndTime)
				printOpt(w, "  exit   ", e.StudentExitTime)
			}
			return nil
		},
	}
}

func printOpt(w io.Writer, label string, v *string) {
	if v != nil {
		fmt.Fprintf(w, "%s%s\n", label, *v)
	}
}

func scanFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "intent",
			Usage: "what a scan after entry means: exit or break",
			Value: string(attendance.IntentExit),
		},
		&cli.IntFlag{
			Name:  "fps",
			Usage: "frames sampled per second",
			Value: 15,
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "scan frames written by a capture tool until a QR code is recorded",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "frames",
				Usage:    "directory the camera capture keeps writing snapshots into",
				Required: true,
			},
			&cli.FloatFlag{
				Name:  "zoom",
				Usage: "zoom level 1.0 to 3.0",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "continuous",
				Usage: "keep scanning after a recorded scan",
			},
		}, scanFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			src, err := scanner.OpenSnapshotDir(cmd.String("frames"))
			if err != nil {
				return err
			}
			return scan(ctx, cmd, src, !cmd.Bool("continuous"), cmd.Float("zoom"))
		},
	}
}

func imageCommand() *cli.Command {
	return &cli.Command{
		Name:      "image",
		Usage:     "record the first QR code found in image files",
		ArgsUsage: "FILE...",
		Flags:     scanFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return errors.New("at least one image file required")
			}
			err := scan(ctx, cmd, scanner.NewFiles(cmd.Args().Slice()...), true, 1)
			if errors.Is(err, io.EOF) {
				return errors.New("no qr code found in the given images")
			}
			return err
		},
	}
}

func qrCommand() *cli.Command {
	return &cli.Command{
		Name:  "qr",
		Usage: "write the current-time attendance QR code as PNG",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "attendance-qr.png"},
			&cli.IntFlag{Name: "size", Value: qrgen.DefaultSize},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			png, err := qrgen.PNG(time.Now(), int(cmd.Int("size")))
			if err != nil {
				return err
			}
			if err := os.WriteFile(cmd.String("out"), png, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "wrote %s\n", cmd.String("out"))
			return nil
		},
	}
}

func sessionPath(cmd *cli.Command) (string, error) {
	if p := cmd.String("session"); p != "" {
		return p, nil
	}
	return client.DefaultSessionPath()
}

// signedIn rebuilds the API client from the saved session.
func signedIn(cmd *cli.Command) (*client.Client, *client.Saved, error) {
	path, err := sessionPath(cmd)
	if err != nil {
		return nil, nil, err
	}
	saved, err := client.LoadSession(path, time.Now())
	if errors.Is(err, client.ErrNoSession) {
		return nil, nil, errors.New("not signed in, run `scan login` first")
	}
	if err != nil {
		return nil, nil, err
	}
	server := saved.Server
	if cmd.IsSet("server") || server == "" {
		server = cmd.String("server")
	}
	return client.New(server, saved.Token), saved, nil
}

func newLogger(cmd *cli.Command) *zap.Logger {
	log, err := logging.New(cmd.String("log-level"), "console")
	if err != nil {
		return zap.NewNop()
	}
	return log
}
