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

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/picamkit/motion-recorder/loglimiter"
)

// analyseBudget is the soft per-frame deadline. A 10 fps stream leaves
// 100ms per frame; overruns are logged but never fail the detector.
const analyseBudget = 100 * time.Millisecond

const minLogInterval = time.Minute

// NewDetector returns a Detector for a cols x rows macroblock grid.
// Grid dimensions must not change for the life of the detector.
func NewDetector(conf MotionConfig, cols, rows int) *Detector {
	d := &Detector{
		conf:     conf,
		field:    NewVectorField(cols, rows),
		labeller: newLabeller(cols, rows),
		recent:   make([]bool, conf.TriggerFrames),
		changed:  make(chan struct{}),
		log:      loglimiter.New(minLogInterval),
	}
	return d
}

// Detector decides whether meaningful motion is occurring by analysing
// one motion vector frame per tick. Analyse must only be called from a
// single goroutine; Triggered, WaitForChange and LatestField are safe to
// call from any goroutine.
type Detector struct {
	conf     MotionConfig
	field    *VectorField
	labeller *labeller

	// recent is a fixed-capacity ring of per-frame motion decisions,
	// only ever touched by the analysis goroutine.
	recent    []bool
	recentPos int

	triggered atomic.Bool

	mu      sync.Mutex
	changed chan struct{}
	latest  *VectorField

	log *loglimiter.LogLimiter
}

// Analyse processes one frame of raw macroblock vector components.
// It updates the cleaned field and, through the debounce window, the
// trigger state.
func (d *Detector) Analyse(vx, vy []int8) error {
	start := time.Now()

	if err := d.field.SetMagnitudes(vx, vy); err != nil {
		return err
	}

	d.labeller.label(d.field, d.conf.VectorThresh)
	_, largest := d.labeller.largest()

	// Clean the field for external consumers: keep only the largest
	// regions, and none at all when the largest is a single block
	// (noise).
	d.cleanField(largest)
	d.publishField()

	frameMotion := largest >= d.conf.AreaThresh
	if frameMotion && d.conf.Verbose {
		log.Printf("motion: largest object %d blocks", largest)
	}

	d.recent[d.recentPos] = frameMotion
	d.recentPos = (d.recentPos + 1) % len(d.recent)

	motionFrames := 0
	for _, m := range d.recent {
		if m {
			motionFrames++
		}
	}

	// Asymmetric debounce: onset needs sustained motion across the whole
	// window, offset needs the window to fall below the threshold.
	if frameMotion && !d.triggered.Load() && motionFrames >= d.conf.TriggerFrames {
		d.setTrigger(true)
	} else if d.triggered.Load() && motionFrames < d.conf.TriggerFrames {
		d.setTrigger(false)
	}

	if elapsed := time.Since(start); elapsed > analyseBudget {
		d.log.Printf("motion analysis took %s, over the frame budget", elapsed)
	}
	return nil
}

// cleanField zeroes every block outside the largest region. Regions
// tying for largest are all kept.
func (d *Detector) cleanField(largest int) {
	labels := d.labeller.labels
	sizes := d.labeller.sizes
	for i := range d.field.Mag {
		if largest < 2 || labels[i] == 0 || sizes[labels[i]-1] != largest {
			d.field.Mag[i] = 0
		}
	}
}

func (d *Detector) publishField() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latest == nil {
		d.latest = NewVectorField(d.field.Cols, d.field.Rows)
	}
	d.field.CopyTo(d.latest)
}

func (d *Detector) setTrigger(on bool) {
	d.mu.Lock()
	d.triggered.Store(on)
	close(d.changed)
	d.changed = make(chan struct{})
	d.mu.Unlock()

	if on {
		log.Print("motion trigger raised")
	} else {
		log.Print("motion trigger cleared")
	}
}

// Triggered reports the current debounced motion decision.
func (d *Detector) Triggered() bool {
	return d.triggered.Load()
}

// WaitForChange blocks until the trigger state changes or the timeout
// elapses, reporting whether a change was seen.
func (d *Detector) WaitForChange(timeout time.Duration) bool {
	d.mu.Lock()
	ch := d.changed
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// LatestField returns a copy of the most recent cleaned vector field,
// or nil if no frame has been analysed yet. Intended for preview and
// debug consumers.
func (d *Detector) LatestField() *VectorField {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latest == nil {
		return nil
	}
	return d.latest.CreateCopy()
}
