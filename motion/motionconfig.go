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

package motion

import "errors"

// MotionConfig holds the detection thresholds for a Detector. Each
// Detector gets its own copy; there is no shared default state.
type MotionConfig struct {
	// VectorThresh is the minimum vector magnitude for a macroblock to
	// count as moving.
	VectorThresh uint8 `yaml:"vector-thresh"`

	// AreaThresh is the minimum number of 4-connected moving macroblocks
	// to count as a moving object.
	AreaThresh int `yaml:"area-thresh"`

	// TriggerFrames is the size of the sliding window of recent frame
	// decisions, and the number of motion frames within it required to
	// raise (or hold) the trigger.
	TriggerFrames int `yaml:"trigger-frames"`

	Verbose bool `yaml:"verbose"`
}

func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		VectorThresh:  10,
		AreaThresh:    25,
		TriggerFrames: 4,
	}
}

func (conf *MotionConfig) Validate() error {
	if conf.AreaThresh < 1 {
		return errors.New("area-thresh should be at least 1")
	}
	if conf.TriggerFrames < 1 {
		return errors.New("trigger-frames should be at least 1")
	}
	return nil
}
