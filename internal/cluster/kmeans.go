// Package cluster provides k-means clustering over embedding vectors and
// stratified sampling by cluster assignment. It is pure computation with no
// external dependencies, used by the retrieval layer to pick a diverse,
// representative subset of chunks for corpus-wide generation tasks.
package cluster

import (
	"math"
	"math/rand"
)

// maxIterations caps the number of assign/update rounds. Embedding spaces
// converge quickly at the corpus sizes we cluster, so a small cap keeps the
// worst case bounded without hurting quality.
const maxIterations = 10

// KMeans partitions vectors into k clusters using Euclidean distance and
// returns the cluster assignment for each vector (assignments[i] is the
// cluster index of vectors[i], in [0, k)).
//
// Degenerate cases are defined rather than errors: when k >= len(vectors)
// every vector becomes its own singleton cluster (identity assignment), and
// a cluster that transiently loses all members keeps its previous centroid.
// The zero-vector and empty-input cases return nil.
func KMeans(vectors [][]float32, k int, rng *rand.Rand) []int {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil
	}
	if k >= n {
		assignments := make([]int, n)
		for i := range assignments {
			assignments[i] = i
		}
		return assignments
	}

	centroids := initCentroids(vectors, k, rng)
	assignments := make([]int, n)

	for iter := 0; iter < maxIterations; iter++ {
		next := assign(vectors, centroids)
		if iter > 0 && equalAssignments(assignments, next) {
			break
		}
		assignments = next
		centroids = updateCentroids(vectors, assignments, centroids)
	}

	return assignments
}

// initCentroids picks k distinct vectors at random as the starting centroids.
func initCentroids(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	perm := rng.Perm(len(vectors))
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		c := make([]float32, len(vectors[perm[i]]))
		copy(c, vectors[perm[i]])
		centroids[i] = c
	}
	return centroids
}

// assign maps each vector to its nearest centroid.
func assign(vectors, centroids [][]float32) []int {
	assignments := make([]int, len(vectors))
	for i, v := range vectors {
		best := 0
		bestDist := math.MaxFloat64
		for c, centroid := range centroids {
			if d := squaredDistance(v, centroid); d < bestDist {
				bestDist = d
				best = c
			}
		}
		assignments[i] = best
	}
	return assignments
}

// updateCentroids recomputes each centroid as the mean of its members.
// Empty clusters keep their previous centroid.
func updateCentroids(vectors [][]float32, assignments []int, prev [][]float32) [][]float32 {
	k := len(prev)
	dim := len(vectors[0])

	sums := make([][]float64, k)
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, v := range vectors {
		c := assignments[i]
		counts[c]++
		for d, x := range v {
			sums[c][d] += float64(x)
		}
	}

	centroids := make([][]float32, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			centroids[c] = prev[c]
			continue
		}
		centroid := make([]float32, dim)
		for d := 0; d < dim; d++ {
			centroid[d] = float32(sums[c][d] / float64(counts[c]))
		}
		centroids[c] = centroid
	}
	return centroids
}

// squaredDistance returns the squared Euclidean distance between a and b.
// Mismatched lengths compare over the shorter prefix.
func squaredDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// equalAssignments reports whether two assignment vectors are identical.
func equalAssignments(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AdaptiveK returns the cluster count used for representative sampling over
// n vectors: ceil(n/10) clamped to [3, 5]. Small corpora still get a few
// strata; large ones never pay for more than 5 centroid updates per round.
func AdaptiveK(n int) int {
	k := (n + 9) / 10
	if k < 3 {
		k = 3
	}
	if k > 5 {
		k = 5
	}
	return k
}

// StratifiedSample selects up to target indices spread across clusters:
// up to ceil(target/k) items per cluster, preserving original order within
// each cluster, never exceeding target overall.
func StratifiedSample(assignments []int, k, target int) []int {
	if target <= 0 || k <= 0 {
		return nil
	}

	perCluster := (target + k - 1) / k

	// Bucket indices by cluster, preserving input order.
	buckets := make(map[int][]int, k)
	for i, c := range assignments {
		buckets[c] = append(buckets[c], i)
	}

	var picked []int
	taken := make(map[int]bool, target)
	for c := 0; c < k && len(picked) < target; c++ {
		members := buckets[c]
		for i := 0; i < len(members) && i < perCluster && len(picked) < target; i++ {
			picked = append(picked, members[i])
			taken[members[i]] = true
		}
	}

	// Top up from the remainder when sparse clusters left the quota unmet,
	// so callers always get min(target, len(assignments)) items.
	for i := 0; i < len(assignments) && len(picked) < target; i++ {
		if !taken[i] {
			picked = append(picked, i)
		}
	}

	return picked
}
