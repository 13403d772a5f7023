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

package events

import (
	"encoding/json"
	"time"

	"github.com/godbus/dbus"
	"github.com/rs/zerolog"

	"github.com/TheCacophonyProject/timelapse-receiver/store"
)

const (
	eventsName   = "org.cacophony.Events"
	eventsPath   = "/org/cacophony/Events"
	eventsMethod = "org.cacophony.Events.Queue"

	FileReceivedType = "timelapseFileReceived"
)

// Device identifies the device the receiver runs on.
type Device struct {
	ID   int
	Name string
}

// NewReporter returns a Reporter which queues events over the system
// bus.
func NewReporter(device Device, logger zerolog.Logger) *Reporter {
	return &Reporter{
		device: device,
		log:    logger,
		queue:  queueOnSystemBus,
		now:    time.Now,
	}
}

// Reporter uses the event api to record each file received. Failures
// to queue an event are logged and otherwise ignored.
type Reporter struct {
	device Device
	log    zerolog.Logger
	queue  func(details []byte, nanos int64) error
	now    func() time.Time
}

func (r *Reporter) FileStored(f *store.StoredFile) {
	details := map[string]interface{}{
		"filename": f.Name,
		"size":     f.Size,
	}
	if r.device.Name != "" {
		details["deviceName"] = r.device.Name
	}
	if r.device.ID > 0 {
		details["deviceId"] = r.device.ID
	}
	eventDetails := map[string]interface{}{
		"description": map[string]interface{}{
			"type":    FileReceivedType,
			"details": details,
		},
	}
	detailsJSON, err := json.Marshal(&eventDetails)
	if err != nil {
		r.log.Error().Err(err).Msg("could not record file received event")
		return
	}
	if err := r.queue(detailsJSON, r.now().UnixNano()); err != nil {
		r.log.Error().Err(err).Msg("could not record file received event")
	}
}

// TransferFailed is a no-op; failed transfers aren't reported as events.
func (r *Reporter) TransferFailed(string, error) {}

func queueOnSystemBus(details []byte, nanos int64) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	obj := conn.Object(eventsName, eventsPath)
	return obj.Call(eventsMethod, 0, details, nanos).Err
}
