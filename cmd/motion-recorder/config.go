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
	"io/ioutil"

	yaml "gopkg.in/yaml.v2"

	"github.com/picamkit/motion-recorder/motion"
	"github.com/picamkit/motion-recorder/recorder"
)

type Config struct {
	// FrameInput is the unixpacket socket the encoder delivers motion
	// vector frames on, one packet per video frame.
	FrameInput string `yaml:"frame-input"`

	// VideoInput is the unix socket carrying the encoded H.264 stream.
	VideoInput string `yaml:"video-input"`

	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	FrameRate int `yaml:"frame-rate"`
	Bitrate   int `yaml:"bitrate"`

	// LEDPin names the GPIO pin of the status LED. Empty disables it.
	LEDPin string `yaml:"led-pin"`

	Motion   motion.MotionConfig     `yaml:"motion"`
	Recorder recorder.RecorderConfig `yaml:"recorder"`
}

var defaultConfig = Config{
	FrameInput: "/var/run/motion-vectors",
	VideoInput: "/var/run/motion-video",
	Width:      1296,
	Height:     972,
	FrameRate:  10,
	Bitrate:    2000000,
	Motion:     motion.DefaultMotionConfig(),
	Recorder:   recorder.DefaultRecorderConfig(),
}

func (conf *Config) Validate() error {
	if conf.Width < 16 || conf.Height < 16 {
		return errors.New("width and height should be at least 16")
	}
	if conf.FrameRate < 1 {
		return errors.New("frame-rate should be at least 1")
	}
	if conf.Bitrate < 1 {
		return errors.New("bitrate should be at least 1")
	}
	if err := conf.Motion.Validate(); err != nil {
		return err
	}
	return conf.Recorder.Validate()
}

// MacroblockGrid returns the motion vector grid dimensions for the
// configured resolution. The encoder reports one vector per 16x16
// block plus one extra column.
func (conf *Config) MacroblockGrid() (cols, rows int) {
	return (conf.Width+15)/16 + 1, (conf.Height + 15) / 16
}

// BufferSize returns the ring buffer capacity in bytes: one second
// more than the pre-buffer to absorb drain latency.
func (conf *Config) BufferSize() int {
	return (conf.Recorder.PreBufferSecs + 1) * conf.Bitrate / 8
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
