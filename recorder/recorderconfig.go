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
	"time"

	"github.com/TheCacophonyProject/window"
)

type RecorderConfig struct {
	OutputDir string `yaml:"output-dir"`

	// FilePattern names recordings, as a time layout string.
	FilePattern string `yaml:"file-pattern"`

	// PreBufferSecs is how many seconds of already-encoded video the
	// ring buffer keeps, and therefore how much footage from before the
	// trigger each recording starts with.
	PreBufferSecs int `yaml:"prebuffer-secs"`

	// DrainSecs is how often the ring buffer is flushed to the output
	// file while motion persists. 0 means half of prebuffer-secs.
	DrainSecs int `yaml:"drain-secs"`

	// MinDiskSpace is the free space (MB) required to start a
	// recording. 0 disables the check.
	MinDiskSpace uint64 `yaml:"min-disk-space"`

	WindowStart window.TimeOfDay `yaml:"window-start"`
	WindowEnd   window.TimeOfDay `yaml:"window-end"`

	// Latitude and Longitude locate the camera for recording windows
	// given relative to sunrise or sunset. 0,0 selects the window
	// package's default location.
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`

	Throttle ThrottleConfig `yaml:"throttle"`
}

// ThrottleConfig bounds how often new recordings may start. Repeated
// triggering tends to produce many near-identical files, for example on
// a windy day.
type ThrottleConfig struct {
	Apply bool `yaml:"apply"`

	// BucketSize is the burst of recordings allowed before throttling.
	BucketSize int64 `yaml:"bucket-size"`

	// RefillMins is the minutes until a throttled recorder earns
	// another recording.
	RefillMins int `yaml:"refill-mins"`
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		OutputDir:     "/var/spool/recordings",
		FilePattern:   "06-01-02T15:04.h264",
		PreBufferSecs: 10,
		MinDiskSpace:  200,
		Throttle: ThrottleConfig{
			Apply:      true,
			BucketSize: 3,
			RefillMins: 10,
		},
	}
}

func (conf *RecorderConfig) Validate() error {
	if conf.PreBufferSecs < 1 {
		return errors.New("prebuffer-secs should be at least 1")
	}
	if conf.DrainSecs < 0 || conf.DrainSecs > conf.PreBufferSecs {
		return errors.New("drain-secs should be between 0 and prebuffer-secs")
	}
	if conf.WindowStart.IsZero() != conf.WindowEnd.IsZero() {
		return errors.New("window-start and window-end must both be set or neither")
	}
	if conf.Throttle.Apply && (conf.Throttle.BucketSize < 1 || conf.Throttle.RefillMins < 1) {
		return errors.New("throttle bucket-size and refill-mins should be at least 1")
	}
	return nil
}

// PreBuffer returns the pre-buffer duration.
func (conf *RecorderConfig) PreBuffer() time.Duration {
	return time.Duration(conf.PreBufferSecs) * time.Second
}

// DrainInterval returns how long to wait between flushes while
// recording.
func (conf *RecorderConfig) DrainInterval() time.Duration {
	if conf.DrainSecs > 0 {
		return time.Duration(conf.DrainSecs) * time.Second
	}
	return conf.PreBuffer() / 2
}
