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

// labeller partitions the active macroblocks of a vector field into
// 4-connected regions. All working storage is allocated once and reused
// so that labelling stays within the per-frame analysis budget.
type labeller struct {
	cols   int
	rows   int
	labels []int32 // 0 means background or below threshold
	sizes  []int   // block count per region, sizes[n-1] for label n
	stack  []int32
}

func newLabeller(cols, rows int) *labeller {
	return &labeller{
		cols:   cols,
		rows:   rows,
		labels: make([]int32, cols*rows),
		sizes:  make([]int, 0, 64),
		stack:  make([]int32, 0, cols*rows),
	}
}

// label runs connected-component labelling over every block of f whose
// magnitude exceeds thresh and returns the number of regions found.
// Region labels start at 1; label 0 is background and is never a region.
func (l *labeller) label(f *VectorField, thresh uint8) int {
	for i := range l.labels {
		l.labels[i] = 0
	}
	l.sizes = l.sizes[:0]

	next := int32(0)
	for i := range f.Mag {
		if f.Mag[i] <= thresh || l.labels[i] != 0 {
			continue
		}
		next++
		l.sizes = append(l.sizes, l.fill(f, thresh, int32(i), next))
	}
	return int(next)
}

// fill flood fills one region from block index start, assigning it the
// given label. Returns the number of blocks in the region.
func (l *labeller) fill(f *VectorField, thresh uint8, start, label int32) int {
	l.stack = l.stack[:0]
	l.stack = append(l.stack, start)
	l.labels[start] = label
	size := 0

	for len(l.stack) > 0 {
		i := l.stack[len(l.stack)-1]
		l.stack = l.stack[:len(l.stack)-1]
		size++

		x := int(i) % l.cols
		if x > 0 {
			l.visit(f, thresh, i-1, label)
		}
		if x < l.cols-1 {
			l.visit(f, thresh, i+1, label)
		}
		if int(i) >= l.cols {
			l.visit(f, thresh, i-int32(l.cols), label)
		}
		if int(i) < (l.rows-1)*l.cols {
			l.visit(f, thresh, i+int32(l.cols), label)
		}
	}
	return size
}

func (l *labeller) visit(f *VectorField, thresh uint8, i, label int32) {
	if l.labels[i] == 0 && f.Mag[i] > thresh {
		l.labels[i] = label
		l.stack = append(l.stack, i)
	}
}

// largest returns the label and block count of the biggest region from
// the last call to label. A frame with no active blocks yields (0, 0).
func (l *labeller) largest() (int32, int) {
	label := int32(0)
	size := 0
	for n, s := range l.sizes {
		if s > size {
			size = s
			label = int32(n + 1)
		}
	}
	return label, size
}
