// timelapse-receiver - receive timelapse frames pushed by capture devices
//  Copyright (C) 2024, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/window"
	arg "github.com/alexflint/go-arg"

	"github.com/TheCacophonyProject/timelapse-receiver/logging"
	"github.com/TheCacophonyProject/timelapse-receiver/sender"
)

var version = "<not set>"

type Args struct {
	Address     string        `arg:"positional,required" help:"receiver host:port"`
	Files       []string      `arg:"positional" help:"files to send"`
	Watch       string        `arg:"--watch" help:"send files as they are written to this directory"`
	WindowStart string        `arg:"--window-start" help:"only send after this time of day (HH:MM)"`
	WindowEnd   string        `arg:"--window-end" help:"only send before this time of day (HH:MM)"`
	Remove      bool          `arg:"--remove" help:"delete files once they have been sent"`
	Retries     int           `arg:"--retries" help:"number of times to retry a failed send"`
	Timeout     time.Duration `arg:"--timeout" help:"timeout for connecting and for each write"`
	Timestamps  bool          `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Verbose     bool          `arg:"-v,--verbose" help:"make logging more verbose"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.Retries = 3
	args.Timeout = sender.DefaultTimeout
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	logger := logging.New(args.Timestamps, args.Verbose)

	if args.Watch == "" && len(args.Files) == 0 {
		return errors.New("nothing to send: give files or --watch")
	}
	if args.Retries < 0 {
		return errors.New("retries can't be negative")
	}
	win, err := parseWindow(args.WindowStart, args.WindowEnd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := sender.New(sender.Config{
		Address: args.Address,
		Timeout: args.Timeout,
		Retries: args.Retries,
	}, logger)

	var failed int
	for _, path := range args.Files {
		if err := s.SendFile(ctx, path); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("send failed")
			failed++
			continue
		}
		if args.Remove {
			if err := os.Remove(path); err != nil {
				logger.Error().Err(err).Str("path", path).Msg("failed to remove sent file")
			}
		}
	}

	if args.Watch != "" {
		w := sender.NewWatcher(s, sender.WatchConfig{
			Dir:    args.Watch,
			Window: win,
			Remove: args.Remove,
		}, logger)
		logger.Info().Str("dir", args.Watch).Msg("watching")
		if err := w.Run(ctx); err != nil {
			return err
		}
	}

	if failed > 0 {
		return errors.New("some files could not be sent")
	}
	return nil
}

// parseWindow returns nil when no window is set.
func parseWindow(start, end string) (*window.Window, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" {
		return nil, errors.New("window-end is set but window-start isn't")
	}
	if end == "" {
		return nil, errors.New("window-start is set but window-end isn't")
	}

	const timeOnly = "15:04"
	startTime, err := time.Parse(timeOnly, start)
	if err != nil {
		return nil, errors.New("invalid window-start")
	}
	endTime, err := time.Parse(timeOnly, end)
	if err != nil {
		return nil, errors.New("invalid window-end")
	}
	return window.New(startTime, endTime), nil
}
