// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package field

import "github.com/eapache/queue"

// History is a fixed-capacity window of readings. It starts full of a
// seed value and drops the oldest reading on every push.
type History struct {
	readings *queue.Queue
	capacity int
}

// NewHistory returns a window of capacity readings, all equal to seed.
// Capacity below one is treated as one.
func NewHistory(capacity, seed int) *History {
	capacity = max(capacity, 1)
	readings := queue.New()
	for range capacity {
		readings.Add(seed)
	}
	return &History{readings: readings, capacity: capacity}
}

// Push appends a reading and drops the oldest.
func (h *History) Push(reading int) {
	h.readings.Add(reading)
	for h.readings.Length() > h.capacity {
		h.readings.Remove()
	}
}

// Values returns the readings, oldest first.
func (h *History) Values() []int {
	values := make([]int, h.readings.Length())
	for i := range values {
		values[i] = h.readings.Get(i).(int)
	}
	return values
}

// Len returns the number of readings, always the capacity.
func (h *History) Len() int {
	return h.readings.Length()
}
