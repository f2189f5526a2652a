// SPDX-License-Identifier: MIT
package analysis

// TimeSeries keeps the most recent rows of a fixed width, oldest first. It
// starts zero filled with all rows present, so a reader always sees
// rows*width values. Not safe for concurrent use.
type TimeSeries struct {
	data  []float32
	width int
	rows  int
	head  int // index of the oldest row
}

// NewTimeSeries allocates rows*width zeros.
func NewTimeSeries(rows, width int) *TimeSeries {
	return &TimeSeries{
		data:  make([]float32, rows*width),
		width: width,
		rows:  rows,
	}
}

// Width returns the row width.
func (t *TimeSeries) Width() int { return t.width }

// Rows returns the number of rows held.
func (t *TimeSeries) Rows() int { return t.rows }

// Push appends a row, evicting the oldest. Rows shorter than the width are
// zero padded, longer rows are truncated.
func (t *TimeSeries) Push(row []float32) {
	if t.rows == 0 {
		return
	}
	slot := t.data[t.head*t.width : (t.head+1)*t.width]
	n := copy(slot, row)
	clear(slot[n:])
	t.head = (t.head + 1) % t.rows
}

// Latest returns the newest row. The slice aliases internal storage.
func (t *TimeSeries) Latest() []float32 {
	if t.rows == 0 {
		return nil
	}
	newest := (t.head + t.rows - 1) % t.rows
	return t.data[newest*t.width : (newest+1)*t.width]
}

// CopyTo writes all rows, oldest first, into dst and returns the count
// written.
func (t *TimeSeries) CopyTo(dst []float32) int {
	split := t.head * t.width
	n := copy(dst, t.data[split:])
	n += copy(dst[n:], t.data[:split])
	return n
}

// Data returns a flattened copy of all rows, oldest first.
func (t *TimeSeries) Data() []float32 {
	out := make([]float32, len(t.data))
	t.CopyTo(out)
	return out
}

// Reset zeroes every row.
func (t *TimeSeries) Reset() {
	clear(t.data)
	t.head = 0
}
