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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCols = 20
	testRows = 15
)

func defaultTestConfig() MotionConfig {
	return MotionConfig{
		VectorThresh:  10,
		AreaThresh:    25,
		TriggerFrames: 4,
	}
}

// frame builders return per-axis vector components for a testCols x
// testRows grid.

func emptyFrame() ([]int8, []int8) {
	return make([]int8, testCols*testRows), make([]int8, testCols*testRows)
}

// blobFrame places a w x h rectangle of moving blocks at (x0, y0).
func blobFrame(x0, y0, w, h int, v int8) ([]int8, []int8) {
	vx, vy := emptyFrame()
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			vx[y*testCols+x] = v
		}
	}
	return vx, vy
}

func analyseSequence(t *testing.T, d *Detector, frames int, makeFrame func(i int) ([]int8, []int8)) []bool {
	triggers := make([]bool, frames)
	for i := range triggers {
		vx, vy := makeFrame(i)
		require.NoError(t, d.Analyse(vx, vy))
		triggers[i] = d.Triggered()
	}
	return triggers
}

func TestNoTriggerBelowVectorThreshold(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)

	// every block moving, but below the magnitude threshold
	triggers := analyseSequence(t, d, 6, func(int) ([]int8, []int8) {
		vx, vy := emptyFrame()
		for i := range vx {
			vx[i] = 8
		}
		return vx, vy
	})

	assert.Equal(t, []bool{false, false, false, false, false, false}, triggers)

	// the cleaned field suppresses sub-threshold blocks entirely
	field := d.LatestField()
	require.NotNil(t, field)
	for _, m := range field.Mag {
		assert.Equal(t, uint8(0), m)
	}
}

func TestRegionOfExactlyAreaThreshold(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)

	// 5x5 = 25 connected blocks, exactly area-thresh
	triggers := analyseSequence(t, d, 4, func(int) ([]int8, []int8) {
		return blobFrame(3, 3, 5, 5, 20)
	})

	// rises exactly when the 4th motion frame fills the window
	assert.Equal(t, []bool{false, false, false, true}, triggers)
}

func TestRegionJustUnderAreaThreshold(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)

	triggers := analyseSequence(t, d, 8, func(int) ([]int8, []int8) {
		return blobFrame(3, 3, 4, 6, 20) // 24 blocks
	})

	for _, trig := range triggers {
		assert.False(t, trig)
	}
}

func TestMotionScenario(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)

	// 10 frames, motion on frames 3-6 (a 30 block region), empty
	// otherwise. The trigger rises once the window fills at frame 6 and
	// falls as soon as the window count drops below the threshold.
	triggers := analyseSequence(t, d, 10, func(i int) ([]int8, []int8) {
		frame := i + 1
		if frame >= 3 && frame <= 6 {
			return blobFrame(2, 2, 6, 5, 20)
		}
		return emptyFrame()
	})

	assert.Equal(t, []bool{
		false, false, false, false, false,
		true, false, false, false, false,
	}, triggers)
}

func TestIdleIdempotence(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)

	// trigger then clear
	for i := 0; i < 4; i++ {
		vx, vy := blobFrame(3, 3, 5, 5, 20)
		require.NoError(t, d.Analyse(vx, vy))
	}
	require.True(t, d.Triggered())

	// all-zero frames keep the trigger cleared, never raising spuriously
	triggers := analyseSequence(t, d, 20, func(int) ([]int8, []int8) {
		return emptyFrame()
	})
	for _, trig := range triggers {
		assert.False(t, trig)
	}
}

func TestSingleBlockIsNoise(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)

	triggers := analyseSequence(t, d, 8, func(int) ([]int8, []int8) {
		return blobFrame(7, 7, 1, 1, 100)
	})

	for _, trig := range triggers {
		assert.False(t, trig)
	}

	// a single-block region is excluded from the cleaned field too
	field := d.LatestField()
	require.NotNil(t, field)
	assert.Equal(t, uint8(0), field.At(7, 7))
}

func TestCleanedFieldKeepsOnlyLargestRegion(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)

	vx, vy := emptyFrame()
	// large region: 2x2 at (1,1); small region: 2x1 at (10,10);
	// sub-threshold movement at (15,5)
	for _, p := range [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 2}, {3, 2}} {
		vx[p[1]*testCols+p[0]] = 20
	}
	vx[10*testCols+10] = 20
	vx[10*testCols+11] = 20
	vx[5*testCols+15] = 8

	require.NoError(t, d.Analyse(vx, vy))

	field := d.LatestField()
	require.NotNil(t, field)
	assert.Equal(t, uint8(20), field.At(1, 1))
	assert.Equal(t, uint8(20), field.At(3, 2))
	assert.Equal(t, uint8(0), field.At(10, 10))
	assert.Equal(t, uint8(0), field.At(11, 10))
	assert.Equal(t, uint8(0), field.At(15, 5))
}

func TestCleanedFieldKeepsTiedLargestRegions(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)

	vx, vy := emptyFrame()
	// two 2x2 regions tied for largest, plus a smaller 2x1 region
	for _, p := range [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 2}} {
		vx[p[1]*testCols+p[0]] = 20
	}
	for _, p := range [][2]int{{10, 10}, {11, 10}, {10, 11}, {11, 11}} {
		vx[p[1]*testCols+p[0]] = 20
	}
	vx[5*testCols+15] = 20
	vx[5*testCols+16] = 20

	require.NoError(t, d.Analyse(vx, vy))

	field := d.LatestField()
	require.NotNil(t, field)
	assert.Equal(t, uint8(20), field.At(1, 1))
	assert.Equal(t, uint8(20), field.At(10, 10))
	assert.Equal(t, uint8(0), field.At(15, 5))
	assert.Equal(t, uint8(0), field.At(16, 5))
}

func TestLatestFieldNilBeforeFirstFrame(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)
	assert.Nil(t, d.LatestField())
}

func TestWaitForChange(t *testing.T) {
	d := NewDetector(defaultTestConfig(), testCols, testRows)

	// no change: times out
	assert.False(t, d.WaitForChange(10*time.Millisecond))

	go func() {
		// give the waiter time to start blocking
		time.Sleep(100 * time.Millisecond)
		for i := 0; i < 4; i++ {
			vx, vy := blobFrame(3, 3, 5, 5, 20)
			d.Analyse(vx, vy)
		}
	}()

	assert.True(t, d.WaitForChange(5*time.Second))
	assert.True(t, d.Triggered())
}
