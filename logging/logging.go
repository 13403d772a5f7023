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

// Package logging builds the console logger shared by the commands.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to stderr. Timestamps are left
// out unless requested since journald adds its own.
func New(timestamps, verbose bool) zerolog.Logger {
	return NewWithWriter(os.Stderr, timestamps, verbose)
}

// NewWithWriter is New with a caller supplied output.
func NewWithWriter(out io.Writer, timestamps, verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}
	if !timestamps {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	ctx := zerolog.New(output).Level(level).With()
	if timestamps {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}
