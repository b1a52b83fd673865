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
	"net"
	"os"
	"sync"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"periph.io/x/periph/host"

	"github.com/picamkit/motion-recorder/motion"
	"github.com/picamkit/motion-recorder/recorder"
	"github.com/picamkit/motion-recorder/stream"
)

var (
	version = "<not set>"

	// shared with the D-Bus status service
	mu         sync.Mutex
	detector   *motion.Detector
	controller *recorder.Controller
)

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Verbose    bool   `arg:"-v,--verbose" help:"make motion detection logging more verbose"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/motion-recorder.yaml"
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()

	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	if args.Verbose {
		conf.Motion.Verbose = true
	}
	logConfig(conf)

	log.Println("starting d-bus service")
	if err := startService(); err != nil {
		return err
	}

	log.Println("host initialisation")
	if _, err := host.Init(); err != nil {
		return err
	}

	led := newStatusLED(conf.LEDPin)

	daemon.SdNotify(false, "READY=1")

	for {
		// Set up listeners for the encoder's vector and video feeds.
		os.Remove(conf.FrameInput)
		vectors, err := net.Listen("unixpacket", conf.FrameInput)
		if err != nil {
			return err
		}
		os.Remove(conf.VideoInput)
		video, err := net.Listen("unix", conf.VideoInput)
		if err != nil {
			vectors.Close()
			return err
		}
		log.Print("waiting for encoder connection")

		vectorConn, err := vectors.Accept()
		if err != nil {
			log.Printf("vector socket accept failed: %v", err)
			vectors.Close()
			video.Close()
			continue
		}
		videoConn, err := video.Accept()
		if err != nil {
			log.Printf("video socket accept failed: %v", err)
			vectorConn.Close()
			vectors.Close()
			video.Close()
			continue
		}

		// Prevent concurrent connections.
		vectors.Close()
		video.Close()

		err = runSession(conf, vectorConn, videoConn, led)
		log.Printf("encoder connection ended with: %v", err)

		vectorConn.Close()
		videoConn.Close()
	}
}

// runSession wires up one encoder connection: a fresh ring buffer and
// detector feed the recording controller until a feed drops.
func runSession(conf *Config, vectorConn, videoConn net.Conn, led *statusLED) error {
	buffer := stream.NewBuffer(conf.BufferSize())
	cols, rows := conf.MacroblockGrid()

	d := motion.NewDetector(conf.Motion, cols, rows)
	session := NewCaptureSession(d, buffer, conf)
	c, err := recorder.NewController(&conf.Recorder, d, session, buffer)
	if err != nil {
		return err
	}

	mu.Lock()
	detector = d
	controller = c
	mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Run()
	}()
	go func() {
		defer wg.Done()
		if err := session.ReadVideo(videoConn); err != nil {
			log.Printf("video feed ended: %v", err)
		}
		session.Stop()
	}()
	if led != nil {
		go led.run(session, d, c)
	}

	log.Print("new encoder connection, reading vector frames")
	err = session.ReadVectors(vectorConn)
	session.Stop()
	videoConn.Close()
	wg.Wait()
	return err
}

func logConfig(conf *Config) {
	log.Printf("frame input: %s", conf.FrameInput)
	log.Printf("video input: %s", conf.VideoInput)
	log.Printf("resolution: %dx%d at %d fps, %d bps", conf.Width, conf.Height, conf.FrameRate, conf.Bitrate)
	log.Printf("output dir: %s", conf.Recorder.OutputDir)
	log.Printf("pre-buffer seconds: %d", conf.Recorder.PreBufferSecs)
	log.Printf("motion: %+v", conf.Motion)
	log.Printf("throttler: %+v", conf.Recorder.Throttle)
	if !conf.Recorder.WindowStart.IsZero() {
		log.Printf("recording window: %02d:%02d to %02d:%02d",
			conf.Recorder.WindowStart.Hour(), conf.Recorder.WindowStart.Minute(),
			conf.Recorder.WindowEnd.Hour(), conf.Recorder.WindowEnd.Minute())
	}
}
