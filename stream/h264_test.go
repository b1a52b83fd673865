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

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nal(nalType byte, payload ...byte) []byte {
	return append([]byte{0, 0, 0, 1, nalType}, payload...)
}

func bufferedTypes(t *testing.T, b *Buffer) []FrameType {
	var types []FrameType
	require.NoError(t, b.Locked(func(v View) error {
		for _, f := range v.Frames() {
			types = append(types, f.Type)
		}
		return nil
	}))
	return types
}

func TestSplitAndClassify(t *testing.T) {
	b := NewBuffer(1000)
	s := NewH264Splitter(b)

	var feed []byte
	feed = append(feed, nal(0x67, 1, 2)...) // SPS
	feed = append(feed, nal(0x68, 3)...)    // PPS
	feed = append(feed, nal(0x65, 4, 5)...) // IDR
	feed = append(feed, nal(0x41, 6)...)    // non-IDR slice
	feed = append(feed, nal(0x41, 7)...)

	_, err := s.Write(feed)
	require.NoError(t, err)
	s.Flush()

	assert.Equal(t, []FrameType{
		FrameSPSHeader, FrameSPSHeader, FrameKey, FrameDelta, FrameDelta,
	}, bufferedTypes(t, b))
}

func TestSplitAcrossWrites(t *testing.T) {
	b := NewBuffer(1000)
	s := NewH264Splitter(b)

	feed := append(nal(0x67, 1, 2, 3), nal(0x41, 4, 5)...)

	// feed one byte at a time
	for _, c := range feed {
		_, err := s.Write([]byte{c})
		require.NoError(t, err)
	}
	s.Flush()

	assert.Equal(t, []FrameType{FrameSPSHeader, FrameDelta}, bufferedTypes(t, b))
	assert.Equal(t, string(feed), string(drainAll(t, b)))
}

func TestGarbageBeforeFirstStartCodeDropped(t *testing.T) {
	b := NewBuffer(1000)
	s := NewH264Splitter(b)

	feed := append([]byte{9, 9, 9}, nal(0x67, 1)...)
	feed = append(feed, nal(0x41, 2)...)

	_, err := s.Write(feed)
	require.NoError(t, err)
	s.Flush()

	assert.Equal(t, []FrameType{FrameSPSHeader, FrameDelta}, bufferedTypes(t, b))
}
