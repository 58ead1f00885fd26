package ringbuf

import (
	"reflect"
	"testing"
)

func TestBufferBounds(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushes   []int
		last     int
		expected []int
	}{
		{"empty", 3, nil, 10, []int{}},
		{"under capacity", 3, []int{1, 2}, 10, []int{2, 1}},
		{"exact capacity", 3, []int{1, 2, 3}, 0, []int{3, 2, 1}},
		{"overwrites oldest", 3, []int{1, 2, 3, 4, 5}, 0, []int{5, 4, 3}},
		{"last n", 5, []int{1, 2, 3, 4, 5, 6}, 2, []int{6, 5}},
		{"zero capacity clamps to one", 0, []int{1, 2}, 0, []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New[int](tt.capacity)
			for _, v := range tt.pushes {
				b.Push(v)
			}
			got := b.Last(tt.last)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
			if b.Len() > b.Cap() {
				t.Errorf("len %d exceeds cap %d", b.Len(), b.Cap())
			}
		})
	}
}
