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

import "bytes"

var startCode = []byte{0, 0, 0, 1}

// NewH264Splitter returns an io.Writer which splits a raw H.264 byte
// stream on NAL start codes and appends each unit to the buffer with
// its frame type. The encoder must emit inline SPS/PPS headers so that
// the buffer always contains a decodable starting point.
func NewH264Splitter(buf *Buffer) *H264Splitter {
	return &H264Splitter{buf: buf}
}

type H264Splitter struct {
	buf     *Buffer
	pending []byte
}

func (s *H264Splitter) Write(p []byte) (int, error) {
	s.pending = append(s.pending, p...)

	for {
		// A unit is complete once the next start code shows up.
		start := bytes.Index(s.pending, startCode)
		if start < 0 {
			break
		}
		next := bytes.Index(s.pending[start+len(startCode):], startCode)
		if next < 0 {
			// Discard any garbage before the first start code.
			s.pending = s.pending[start:]
			break
		}
		end := start + len(startCode) + next
		unit := s.pending[start:end]
		s.buf.Append(unit, classifyNAL(unit))
		s.pending = s.pending[end:]
	}
	return len(p), nil
}

// Flush appends any trailing partial unit, for end of session.
func (s *H264Splitter) Flush() {
	if len(s.pending) >= len(startCode)+1 && bytes.HasPrefix(s.pending, startCode) {
		s.buf.Append(s.pending, classifyNAL(s.pending))
	}
	s.pending = nil
}

func classifyNAL(unit []byte) FrameType {
	if len(unit) < len(startCode)+1 {
		return FrameUnknown
	}
	switch unit[len(startCode)] & 0x1f {
	case 7, 8: // SPS, PPS
		return FrameSPSHeader
	case 5: // IDR slice
		return FrameKey
	default:
		return FrameDelta
	}
}
