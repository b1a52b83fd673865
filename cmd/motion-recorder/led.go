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
	"log"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"

	"github.com/picamkit/motion-recorder/motion"
	"github.com/picamkit/motion-recorder/recorder"
)

func newStatusLED(pinName string) *statusLED {
	if pinName == "" {
		return nil
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		log.Printf("status LED pin %q not found, LED disabled", pinName)
		return nil
	}
	return &statusLED{pin: pin}
}

type statusLED struct {
	pin gpio.PinIO
}

// run blinks the LED briefly every couple of seconds while idle and
// holds it on while a recording is being written. Exits with the
// session.
func (l *statusLED) run(session *CaptureSession, detector *motion.Detector, controller *recorder.Controller) {
	defer l.pin.Out(gpio.Low)

	for session.Recording() {
		if controller.Recording() {
			l.pin.Out(gpio.High)
			session.Wait(500 * time.Millisecond)
			continue
		}
		if !detector.Triggered() {
			l.pin.Out(gpio.High)
			session.Wait(50 * time.Millisecond) // enough for a quick blink
			l.pin.Out(gpio.Low)
		}
		session.Wait(2 * time.Second)
	}
}
