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
	"fmt"
	"math"
)

const maxMagnitude = 255

// VectorField holds the per-macroblock motion magnitudes for a single
// video frame. The encoder emits one vector per 16x16 pixel block so
// even an HD stream is only a few thousand values. Storage is reused
// from frame to frame; copy before handing a field to another goroutine.
type VectorField struct {
	Cols int
	Rows int
	Mag  []uint8 // row-major, Cols*Rows values
}

func NewVectorField(cols, rows int) *VectorField {
	return &VectorField{
		Cols: cols,
		Rows: rows,
		Mag:  make([]uint8, cols*rows),
	}
}

// At returns the magnitude for the macroblock at (x, y).
func (f *VectorField) At(x, y int) uint8 {
	return f.Mag[y*f.Cols+x]
}

// SetMagnitudes fills the field from raw per-axis vector components,
// taking the Euclidean magnitude of each block clamped to maxMagnitude.
func (f *VectorField) SetMagnitudes(vx, vy []int8) error {
	if len(vx) != len(f.Mag) || len(vy) != len(f.Mag) {
		return fmt.Errorf("vector frame has %d/%d blocks, expected %d", len(vx), len(vy), len(f.Mag))
	}
	for i := range f.Mag {
		x := int(vx[i])
		y := int(vy[i])
		m := int(math.Sqrt(float64(x*x + y*y)))
		if m > maxMagnitude {
			m = maxMagnitude
		}
		f.Mag[i] = uint8(m)
	}
	return nil
}

// CreateCopy returns an independent copy of the field.
func (f *VectorField) CreateCopy() *VectorField {
	out := NewVectorField(f.Cols, f.Rows)
	copy(out.Mag, f.Mag)
	return out
}

// CopyTo copies this field's magnitudes into out, which must have the
// same dimensions.
func (f *VectorField) CopyTo(out *VectorField) {
	copy(out.Mag, f.Mag)
}
