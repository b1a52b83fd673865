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

package recorder

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/window"
	"github.com/juju/ratelimit"

	"github.com/picamkit/motion-recorder/loglimiter"
	"github.com/picamkit/motion-recorder/stream"
)

const minLogInterval = time.Minute

const windowTimeLayout = "15:04"

var errNoHeader = errors.New("no header frame buffered yet")

// Trigger is the debounced motion decision the controller waits on,
// implemented by motion.Detector.
type Trigger interface {
	Triggered() bool
	WaitForChange(timeout time.Duration) bool
}

// Session reports whether the capture session is still running and
// provides a timed wait tied to the session, so loops wake promptly on
// shutdown instead of sleeping out a wall-clock interval.
type Session interface {
	Recording() bool
	Wait(timeout time.Duration)
}

// Stream is the locked drain access of the encoded video ring buffer.
type Stream interface {
	Locked(fn func(stream.View) error) error
}

func NewController(conf *RecorderConfig, trigger Trigger, session Session, buffered Stream) (*Controller, error) {
	// Equal start and end times (the unset default) mean no window, so
	// recording is always allowed.
	w, err := window.New(
		conf.WindowStart.Format(windowTimeLayout),
		conf.WindowEnd.Format(windowTimeLayout),
		conf.Latitude,
		conf.Longitude)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		conf:    conf,
		trigger: trigger,
		session: session,
		stream:  buffered,
		window:  w,
		log:     loglimiter.New(minLogInterval),
		nowFunc: time.Now,
		openSink: func(name string) (io.WriteCloser, error) {
			return os.Create(name)
		},
	}
	if conf.Throttle.Apply {
		refill := time.Duration(conf.Throttle.RefillMins) * time.Minute
		c.bucket = ratelimit.NewBucket(refill, conf.Throttle.BucketSize)
	}
	return c, nil
}

// Controller owns the trigger-driven recording loop. It is either idle,
// waiting on the motion trigger, or flushing the ring buffer into an
// open output file until motion ends. At most one output file is open
// at any time and it is written only by the controller goroutine.
type Controller struct {
	conf    *RecorderConfig
	trigger Trigger
	session Session
	stream  Stream
	window  *window.Window
	bucket  *ratelimit.Bucket
	log     *loglimiter.LogLimiter

	nowFunc  func() time.Time
	openSink func(name string) (io.WriteCloser, error)

	mu            sync.Mutex
	recording     bool
	lastRecording string
}

// Run waits for the motion trigger and records each motion event to its
// own file. It returns when the capture session ends. Per-event
// failures are logged and recovered; they never end the loop.
func (c *Controller) Run() {
	for c.session.Recording() {
		if !c.trigger.WaitForChange(c.conf.PreBuffer()) {
			continue
		}
		if !c.trigger.Triggered() {
			continue
		}
		c.record()
	}
}

// record handles a single motion event: flush the pre-buffer to a new
// file, keep appending while motion persists, then close and cool down.
func (c *Controller) record() {
	if !c.window.Active() {
		c.log.Print("motion detected but outside of recording window")
		return
	}
	if c.bucket != nil && c.bucket.TakeAvailable(1) == 0 {
		c.log.Print("recording throttled")
		return
	}
	if err := c.checkDiskSpace(); err != nil {
		c.log.Printf("recording not started: %v", err)
		return
	}

	sink, name, err := c.saveBuffer()
	if err != nil {
		log.Printf("failed to start recording: %v", err)
		return
	}
	if sink == nil {
		return
	}

	c.setRecording(true, name)
	defer func() {
		sink.Close()
		c.setRecording(false, name)
		log.Printf("recording stopped: %s", name)

		// Let the ring buffer refill before waiting on the trigger
		// again; this also throttles immediate re-triggering.
		c.session.Wait(c.conf.PreBuffer())
	}()

	for c.trigger.Triggered() && c.session.Recording() {
		c.session.Wait(c.conf.DrainInterval())
		if err := c.appendBuffer(sink); err != nil {
			log.Printf("error writing recording: %v", err)
			return
		}
	}
}

// saveBuffer opens a new output file and drains the ring buffer into
// it, starting from the most recent header frame so the file is
// decodable from its first byte. Returns a nil sink (and nil error)
// when the event should be skipped: session over, or nothing decodable
// buffered yet.
func (c *Controller) saveBuffer() (io.WriteCloser, string, error) {
	if !c.session.Recording() {
		return nil, "", nil
	}

	name := filepath.Join(c.conf.OutputDir, c.nowFunc().Format(c.conf.FilePattern))
	sink, err := c.openSink(name)
	if err != nil {
		return nil, "", err
	}

	err = c.stream.Locked(func(v stream.View) error {
		header, ok := latestHeader(v.Frames())
		if !ok {
			return errNoHeader
		}
		v.SeekTo(header.Position)
		if err := drain(v, sink); err != nil {
			return err
		}
		v.Truncate()
		return nil
	})
	if err != nil {
		sink.Close()
		os.Remove(name)
		if err == errNoHeader {
			c.log.Print("motion triggered but no header frame buffered, skipping")
			return nil, "", nil
		}
		return nil, "", err
	}

	log.Printf("recording started: %s", name)
	return sink, name, nil
}

// appendBuffer flushes everything buffered since the last drain into
// the open recording.
func (c *Controller) appendBuffer(sink io.Writer) error {
	if !c.session.Recording() {
		return nil
	}
	return c.stream.Locked(func(v stream.View) error {
		if err := drain(v, sink); err != nil {
			return err
		}
		v.Truncate()
		return nil
	})
}

func drain(v stream.View, sink io.Writer) error {
	for {
		buf := v.ReadAvailable()
		if len(buf) == 0 {
			return nil
		}
		if _, err := sink.Write(buf); err != nil {
			return err
		}
	}
}

// latestHeader finds the start of the most recent run of header frames.
// SPS and PPS arrive as adjacent header-tagged frames; a recording has
// to start at the first of the group.
func latestHeader(frames []stream.FrameDesc) (stream.FrameDesc, bool) {
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Type != stream.FrameSPSHeader {
			continue
		}
		for i > 0 && frames[i-1].Type == stream.FrameSPSHeader {
			i--
		}
		return frames[i], true
	}
	return stream.FrameDesc{}, false
}

func (c *Controller) setRecording(on bool, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = on
	c.lastRecording = name
}

// Recording reports whether an output file is currently open. Safe to
// call from other goroutines (status LED, D-Bus service).
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// LastRecording returns the name of the most recent recording, or ""
// if none has been made this session.
func (c *Controller) LastRecording() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRecording
}

func (c *Controller) checkDiskSpace() error {
	if c.conf.MinDiskSpace == 0 {
		return nil
	}
	var fs syscall.Statfs_t
	if err := syscall.Statfs(c.conf.OutputDir, &fs); err != nil {
		return err
	}
	if fs.Bavail*uint64(fs.Bsize)/1024/1024 < c.conf.MinDiskSpace {
		return errors.New("not enough free disk space")
	}
	return nil
}
