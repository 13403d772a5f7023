// timelapse-receiver - receive timelapse frames pushed by capture devices
// Copyright (C) 2019, The Cacophony Project
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

package loglimiter

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// New returns a new LogLimiter which writes warnings to logger and
// suppresses repeats seen within interval.
func New(interval time.Duration, logger zerolog.Logger) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// LogLimiter will suppress log messages if the same log message is
// seen within some time interval. Suppressed messages are counted and
// the count is attached to the next message that gets through.
type LogLimiter struct {
	interval      time.Duration
	logger        zerolog.Logger
	nowFunc       func() time.Time
	mu            sync.Mutex
	previousEntry string
	previousTime  time.Time
	suppressed    int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.Print(fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.nowFunc()
	if now.Sub(limiter.previousTime) < limiter.interval && s == limiter.previousEntry {
		limiter.suppressed++
		return
	}

	event := limiter.logger.Warn()
	if limiter.suppressed > 0 {
		event = event.Int("suppressed", limiter.suppressed)
	}
	event.Msg(s)
	limiter.previousTime = now
	limiter.previousEntry = s
	limiter.suppressed = 0
}
