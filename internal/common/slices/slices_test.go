package slices

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	toString := func(val int) string { return fmt.Sprintf("%d", val) }
	input := []int{1, 3, 5, 7, 9}
	expectedOutput := []string{"1", "3", "5", "7", "9"}

	output := Map(input, toString)
	assert.Equal(t, expectedOutput, output)
}

func TestMapEmptyList(t *testing.T) {
	toString := func(val int) string { return fmt.Sprintf("%d", val) }
	output := Map([]int{}, toString)
	assert.Equal(t, []string{}, output)
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3, 4}, Flatten([][]int{{1, 2}, {}, {3}, {4}}))
	assert.Nil(t, Flatten([][]int{nil, nil}))
	assert.Nil(t, Flatten[[]int]([][]int{}))
}

func TestInterleave(t *testing.T) {
	tests := map[string]struct {
		input    [][]string
		expected []string
	}{
		"equal lengths": {
			input:    [][]string{{"a1", "a2"}, {"b1", "b2"}, {"c1", "c2"}},
			expected: []string{"a1", "b1", "c1", "a2", "b2", "c2"},
		},
		"uneven lengths keep every element": {
			input:    [][]string{{"a1", "a2", "a3"}, {"b1"}, {}, {"d1", "d2"}},
			expected: []string{"a1", "b1", "d1", "a2", "d2", "a3"},
		},
		"single slice": {
			input:    [][]string{{"a1", "a2"}},
			expected: []string{"a1", "a2"},
		},
		"empty": {
			input:    nil,
			expected: []string{},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Interleave(tc.input))
		})
	}
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, Unique([]string{"10.0.0.1", "10.0.0.2", "10.0.0.1"}))
	assert.Nil(t, Unique[[]string](nil))
	assert.Equal(t, []int{}, Unique([]int{}))
}
