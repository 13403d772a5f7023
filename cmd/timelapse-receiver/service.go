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
	"errors"
	"sync/atomic"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/timelapse-receiver/store"
)

const (
	dbusName = "org.cacophony.timelapsereceiver"
	dbusPath = "/org/cacophony/timelapsereceiver"
)

// service counts transfers and exposes the counts on the system bus.
type service struct {
	received atomic.Uint64
	failed   atomic.Uint64
	lastFile atomic.Value
}

func newService() *service {
	s := &service{}
	s.lastFile.Store("")
	return s
}

func startService(s *service) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

func (s *service) FileStored(f *store.StoredFile) {
	s.received.Add(1)
	s.lastFile.Store(f.Name)
}

func (s *service) TransferFailed(string, error) {
	s.failed.Add(1)
}

// Stats returns the number of files received and transfers failed
// since the receiver started.
func (s *service) Stats() (uint64, uint64, *dbus.Error) {
	return s.received.Load(), s.failed.Load(), nil
}

// LastFile returns the name of the most recently stored file.
func (s *service) LastFile() (string, *dbus.Error) {
	return s.lastFile.Load().(string), nil
}
