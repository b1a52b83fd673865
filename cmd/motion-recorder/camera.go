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
	"encoding/binary"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/coreos/go-systemd/daemon"

	"github.com/picamkit/motion-recorder/motion"
	"github.com/picamkit/motion-recorder/stream"
)

// vectorBlock is one record of the encoder's per-frame motion vector
// output, little endian on the wire.
type vectorBlock struct {
	X   int8
	Y   int8
	SAD int16 // sum of absolute differences, unused here
}

// NewCaptureSession wraps one encoder connection. It satisfies
// recorder.Session: Recording and Wait let the controller and other
// worker loops observe the session ending within one timeout.
func NewCaptureSession(detector *motion.Detector, buffer *stream.Buffer, conf *Config) *CaptureSession {
	cols, rows := conf.MacroblockGrid()
	return &CaptureSession{
		detector:  detector,
		buffer:    buffer,
		cols:      cols,
		rows:      rows,
		frameRate: conf.FrameRate,
		done:      make(chan struct{}),
	}
}

type CaptureSession struct {
	detector  *motion.Detector
	buffer    *stream.Buffer
	cols      int
	rows      int
	frameRate int

	stopOnce sync.Once
	done     chan struct{}
}

func (s *CaptureSession) Recording() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Wait sleeps for up to timeout, returning early if the session ends.
func (s *CaptureSession) Wait(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
	}
}

func (s *CaptureSession) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// ReadVectors consumes motion vector frames from the encoder and runs
// each through the detector. Returns when the connection drops or the
// session is stopped.
func (s *CaptureSession) ReadVectors(conn net.Conn) error {
	blocks := make([]vectorBlock, s.cols*s.rows)
	vx := make([]int8, len(blocks))
	vy := make([]int8, len(blocks))

	frameLogIntervalFirstMin := 15 * s.frameRate
	frameLogInterval := 60 * 5 * s.frameRate
	framesPerSdNotify := 5 * s.frameRate

	totalFrames := 0
	notifyCount := 0
	for s.Recording() {
		if err := binary.Read(conn, binary.LittleEndian, &blocks); err != nil {
			return err
		}
		totalFrames++

		if totalFrames%frameLogIntervalFirstMin == 0 &&
			totalFrames <= 60*s.frameRate || totalFrames%frameLogInterval == 0 {
			log.Printf("%d vector frames for this connection", totalFrames)
		}

		for i, b := range blocks {
			vx[i] = b.X
			vy[i] = b.Y
		}
		if err := s.detector.Analyse(vx, vy); err != nil {
			return err
		}

		if notifyCount++; notifyCount >= framesPerSdNotify {
			daemon.SdNotify(false, "WATCHDOG=1")
			notifyCount = 0
		}
	}
	return nil
}

// ReadVideo copies the encoder's H.264 feed into the ring buffer until
// the connection drops.
func (s *CaptureSession) ReadVideo(conn net.Conn) error {
	splitter := stream.NewH264Splitter(s.buffer)
	_, err := io.Copy(splitter, conn)
	splitter.Flush()
	return err
}
