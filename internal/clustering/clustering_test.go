package clustering

import (
	"reflect"
	"testing"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		edges    []Edge
		expected []Cluster
	}{
		{
			name:     "no edges",
			edges:    nil,
			expected: nil,
		},
		{
			name:  "transitive closure",
			edges: []Edge{{A: 30, B: 20}, {A: 20, B: 10}},
			expected: []Cluster{
				{ID: 10, Members: []int64{10, 20, 30}},
			},
		},
		{
			name:  "separate components sorted by id",
			edges: []Edge{{A: 9, B: 7}, {A: 2, B: 5}, {A: 5, B: 2}},
			expected: []Cluster{
				{ID: 2, Members: []int64{2, 5}},
				{ID: 7, Members: []int64{7, 9}},
			},
		},
		{
			name:     "self loop is not a cluster",
			edges:    []Edge{{A: 4, B: 4}},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(tt.edges)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Build() = %+v, expected %+v", got, tt.expected)
			}
		})
	}
}

func TestBuildOrderIndependent(t *testing.T) {
	a := Build([]Edge{{1, 2}, {3, 4}, {2, 3}})
	b := Build([]Edge{{2, 3}, {4, 3}, {2, 1}})
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Expected equal clusterings, got %+v and %+v", a, b)
	}
}

func TestAssignments(t *testing.T) {
	got := Assignments([]Cluster{{ID: 1, Members: []int64{1, 3}}, {ID: 2, Members: []int64{2, 8}}})
	expected := map[int64]int64{1: 1, 3: 1, 2: 2, 8: 2}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Assignments() = %v, expected %v", got, expected)
	}
}
