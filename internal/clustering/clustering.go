// Package clustering groups matched entities into connected components.
package clustering

import (
	"sort"
)

// Edge links two entities that were matched.
type Edge struct {
	A, B int64
}

// Cluster is a set of at least two entities. ID is the smallest member.
type Cluster struct {
	ID      int64
	Members []int64
}

type unionFind struct {
	parent map[int64]int64
	rank   map[int64]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int64]int64), rank: make(map[int64]int)}
}

func (u *unionFind) find(x int64) int64 {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		return x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *unionFind) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

// Build returns the connected components of the edge graph with two or more
// members, sorted by cluster id. Members are sorted ascending. Matching is
// transitive: A-B and B-C put A, B and C in one cluster.
func Build(edges []Edge) []Cluster {
	uf := newUnionFind()
	for _, e := range edges {
		uf.union(e.A, e.B)
	}

	components := make(map[int64][]int64)
	for x := range uf.parent {
		root := uf.find(x)
		components[root] = append(components[root], x)
	}

	var clusters []Cluster
	for _, members := range components {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		clusters = append(clusters, Cluster{ID: members[0], Members: members})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters
}

// Assignments maps every clustered entity to its cluster id.
func Assignments(clusters []Cluster) map[int64]int64 {
	out := make(map[int64]int64)
	for _, c := range clusters {
		for _, m := range c.Members {
			out[m] = c.ID
		}
	}
	return out
}
