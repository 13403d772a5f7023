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

package sender

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TheCacophonyProject/window"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultSettle = 2 * time.Second

type WatchConfig struct {
	Dir string
	// Window restricts sending to part of the day. nil means always.
	Window *window.Window
	// Remove deletes each file once it has been sent. The directory is
	// then treated as a spool and files already in it are sent at start.
	Remove bool
	// Settle is how long a file must go unmodified before it is sent.
	Settle time.Duration
}

// Watcher sends files as they are written into a directory.
type Watcher struct {
	sender  *Sender
	conf    WatchConfig
	log     zerolog.Logger
	pending map[string]time.Time
	now     func() time.Time
}

func NewWatcher(s *Sender, conf WatchConfig, logger zerolog.Logger) *Watcher {
	if conf.Settle <= 0 {
		conf.Settle = DefaultSettle
	}
	return &Watcher{
		sender:  s,
		conf:    conf,
		log:     logger.With().Str("dir", conf.Dir).Logger(),
		pending: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Run watches the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.conf.Dir); err != nil {
		return err
	}
	if w.conf.Remove {
		if err := w.addExisting(); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(w.conf.Settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.touch(filepath.Base(event.Name))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watch error")

		case <-ticker.C:
			w.sendDue(ctx)
		}
	}
}

func (w *Watcher) addExisting() error {
	infos, err := ioutil.ReadDir(w.conf.Dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if info.Mode().IsRegular() {
			w.touch(info.Name())
		}
	}
	return nil
}

func (w *Watcher) touch(name string) {
	if strings.HasPrefix(name, ".") {
		return
	}
	w.pending[name] = w.now()
}

// due returns the pending files which have settled, oldest name first.
// Nothing is due outside the send window.
func (w *Watcher) due() []string {
	if w.conf.Window != nil && !w.conf.Window.Active() {
		return nil
	}
	now := w.now()
	var names []string
	for name, modified := range w.pending {
		if now.Sub(modified) >= w.conf.Settle {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (w *Watcher) sendDue(ctx context.Context) {
	for _, name := range w.due() {
		if ctx.Err() != nil {
			return
		}
		delete(w.pending, name)

		path := filepath.Join(w.conf.Dir, name)
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := w.sender.SendFile(ctx, path); err != nil {
			w.log.Error().Err(err).Str("filename", name).Msg("giving up on file")
			continue
		}
		if w.conf.Remove {
			if err := os.Remove(path); err != nil {
				w.log.Error().Err(err).Str("filename", name).Msg("failed to remove sent file")
			}
		}
	}
}
