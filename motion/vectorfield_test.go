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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagnitudes(t *testing.T) {
	f := NewVectorField(2, 2)
	err := f.SetMagnitudes(
		[]int8{3, -3, 0, 127},
		[]int8{4, -4, 0, -127},
	)
	require.NoError(t, err)

	assert.Equal(t, uint8(5), f.At(0, 0))
	assert.Equal(t, uint8(5), f.At(1, 0))
	assert.Equal(t, uint8(0), f.At(0, 1))
	assert.Equal(t, uint8(179), f.At(1, 1)) // sqrt(2*127^2), under the clamp
}

func TestMagnitudesWrongSize(t *testing.T) {
	f := NewVectorField(2, 2)
	err := f.SetMagnitudes([]int8{1, 2, 3}, []int8{1, 2, 3})
	assert.Error(t, err)
}

func TestCreateCopyIsIndependent(t *testing.T) {
	f := NewVectorField(2, 1)
	require.NoError(t, f.SetMagnitudes([]int8{3, 0}, []int8{4, 0}))

	c := f.CreateCopy()
	require.NoError(t, f.SetMagnitudes([]int8{0, 0}, []int8{0, 0}))

	assert.Equal(t, uint8(5), c.At(0, 0))
	assert.Equal(t, uint8(0), f.At(0, 0))
}
