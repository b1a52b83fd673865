// motion-recorder - motion triggered video recording using H.264 motion vectors
//  Copyright (C) 2019, The Picamkit Project
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

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.picamkit.motionrecorder"
	dbusPath = "/org/picamkit/motionrecorder"
)

type service struct{}

func startService() error {
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

	s := new(service)
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

// Status reports whether motion is currently triggered and whether a
// recording is being written.
func (s *service) Status() (bool, bool, *dbus.Error) {
	mu.Lock()
	d, c := detector, controller
	mu.Unlock()
	if d == nil || c == nil {
		return false, false, nil
	}
	return d.Triggered(), c.Recording(), nil
}

// LastRecording returns the filename of the most recent recording for
// this session, or an empty string.
func (s *service) LastRecording() (string, *dbus.Error) {
	mu.Lock()
	c := controller
	mu.Unlock()
	if c == nil {
		return "", nil
	}
	return c.LastRecording(), nil
}
