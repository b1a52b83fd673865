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

// Package stream holds the in-memory circular store of encoded video
// that motion recordings are flushed from.
package stream

import "sync"

type FrameType int

const (
	FrameUnknown FrameType = iota

	// FrameSPSHeader marks codec parameter sets. An independently
	// decodable recording must start at one of these.
	FrameSPSHeader

	// FrameKey marks an intra (IDR) frame.
	FrameKey

	// FrameDelta marks a predicted frame.
	FrameDelta
)

// FrameDesc describes one buffered encoded frame. Position is the
// absolute offset of the frame's first byte since the session started,
// so descriptors stay valid across evictions and truncations.
type FrameDesc struct {
	Position int64
	Index    int
	Type     FrameType
}

// View is handed to the function passed to Locked and allows reading
// and truncating the buffer while the producer is held off.
type View interface {
	// Frames lists the buffered frame descriptors, oldest first. The
	// returned slice is only valid within the locked section.
	Frames() []FrameDesc

	// SeekTo moves the read cursor to an absolute stream position,
	// clamped to the range still buffered.
	SeekTo(pos int64)

	// ReadAvailable returns everything between the read cursor and the
	// end of the buffer, advancing the cursor. Nil when drained.
	ReadAvailable() []byte

	// Truncate discards all buffered frames and moves the read cursor
	// to the end of the stream. Positions keep increasing afterwards.
	Truncate()
}

// NewBuffer returns a Buffer which holds up to capacity bytes of
// encoded video, evicting whole frames from the oldest end as needed.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// Buffer is an append-only circular store of encoded frames shared
// between the encoder feed (Append) and the recording controller
// (Locked). All access is serialised on one mutex so a drain never
// interleaves with a producer append.
type Buffer struct {
	mu        sync.Mutex
	capacity  int
	frames    []frameEntry // oldest first
	size      int
	end       int64 // absolute offset just past the newest byte
	readPos   int64
	nextIndex int
	descs     []FrameDesc
}

type frameEntry struct {
	desc FrameDesc
	data []byte
}

// Append stores one encoded frame. The data is copied so the caller may
// reuse its buffer. The oldest frames are dropped once the buffer is
// over capacity; the newest frame is always kept, even an oversized one.
func (b *Buffer) Append(data []byte, t FrameType) {
	if len(data) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry := frameEntry{
		desc: FrameDesc{
			Position: b.end,
			Index:    b.nextIndex,
			Type:     t,
		},
		data: append([]byte(nil), data...),
	}
	b.nextIndex++
	b.end += int64(len(data))
	b.size += len(data)
	b.frames = append(b.frames, entry)

	for b.size > b.capacity && len(b.frames) > 1 {
		b.size -= len(b.frames[0].data)
		b.frames = b.frames[1:]
	}
	if start := b.start(); b.readPos < start {
		b.readPos = start
	}
}

// Locked runs fn with exclusive access to the buffer.
func (b *Buffer) Locked(fn func(View) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn((*view)(b))
}

func (b *Buffer) start() int64 {
	if len(b.frames) == 0 {
		return b.end
	}
	return b.frames[0].desc.Position
}

type view Buffer

func (v *view) Frames() []FrameDesc {
	v.descs = v.descs[:0]
	for _, entry := range v.frames {
		v.descs = append(v.descs, entry.desc)
	}
	return v.descs
}

func (v *view) SeekTo(pos int64) {
	if start := (*Buffer)(v).start(); pos < start {
		pos = start
	}
	if pos > v.end {
		pos = v.end
	}
	v.readPos = pos
}

func (v *view) ReadAvailable() []byte {
	if v.readPos >= v.end {
		return nil
	}

	out := make([]byte, 0, v.end-v.readPos)
	for _, entry := range v.frames {
		frameEnd := entry.desc.Position + int64(len(entry.data))
		if frameEnd <= v.readPos {
			continue
		}
		data := entry.data
		if v.readPos > entry.desc.Position {
			data = data[v.readPos-entry.desc.Position:]
		}
		out = append(out, data...)
	}
	v.readPos = v.end
	return out
}

func (v *view) Truncate() {
	v.frames = v.frames[:0]
	v.size = 0
	v.readPos = v.end
}
