package cluster

import (
	"math/rand"
	"testing"
)

// twoBlobVectors returns n 2-D vectors split between two well-separated
// blobs, plus the index at which the second blob starts.
func twoBlobVectors(n int) ([][]float32, int) {
	vectors := make([][]float32, 0, n)
	half := n / 2
	for i := 0; i < half; i++ {
		vectors = append(vectors, []float32{0.0 + float32(i)*0.01, 0.0})
	}
	for i := half; i < n; i++ {
		vectors = append(vectors, []float32{10.0 + float32(i)*0.01, 10.0})
	}
	return vectors, half
}

func TestKMeans_Empty(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	if got := KMeans(nil, 3, rng); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := KMeans([][]float32{{1, 2}}, 0, rng); got != nil {
		t.Errorf("expected nil for k=0, got %v", got)
	}
}

// TestKMeans_SingletonClusters verifies the degenerate case: k >= number of
// vectors yields the identity assignment.
func TestKMeans_SingletonClusters(t *testing.T) {
	t.Parallel()

	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	rng := rand.New(rand.NewSource(1))

	got := KMeans(vectors, 3, rng)
	want := []int{0, 1, 2}
	if !equalAssignments(got, want) {
		t.Errorf("k == n: want %v, got %v", want, got)
	}

	got = KMeans(vectors, 10, rng)
	if !equalAssignments(got, want) {
		t.Errorf("k > n: want %v, got %v", want, got)
	}
}

// TestKMeans_SeparatesBlobs verifies that two well-separated blobs end up in
// two distinct clusters with pure membership.
func TestKMeans_SeparatesBlobs(t *testing.T) {
	t.Parallel()

	vectors, half := twoBlobVectors(20)
	rng := rand.New(rand.NewSource(42))

	assignments := KMeans(vectors, 2, rng)
	if len(assignments) != len(vectors) {
		t.Fatalf("want %d assignments, got %d", len(vectors), len(assignments))
	}

	firstBlob := assignments[0]
	for i := 0; i < half; i++ {
		if assignments[i] != firstBlob {
			t.Errorf("vector %d: expected cluster %d, got %d", i, firstBlob, assignments[i])
		}
	}
	secondBlob := assignments[half]
	if secondBlob == firstBlob {
		t.Fatalf("both blobs assigned to cluster %d", firstBlob)
	}
	for i := half; i < len(vectors); i++ {
		if assignments[i] != secondBlob {
			t.Errorf("vector %d: expected cluster %d, got %d", i, secondBlob, assignments[i])
		}
	}
}

func TestAdaptiveK(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n, want int
	}{
		{1, 3}, {10, 3}, {29, 3}, {31, 4}, {40, 4}, {50, 5}, {500, 5},
	}
	for _, tc := range cases {
		if got := AdaptiveK(tc.n); got != tc.want {
			t.Errorf("AdaptiveK(%d): want %d, got %d", tc.n, tc.want, got)
		}
	}
}

func TestStratifiedSample_SpreadsAcrossClusters(t *testing.T) {
	t.Parallel()

	// 50 items evenly spread across 5 clusters.
	assignments := make([]int, 50)
	for i := range assignments {
		assignments[i] = i % 5
	}

	picked := StratifiedSample(assignments, 5, 10)
	if len(picked) != 10 {
		t.Fatalf("want 10 picks, got %d", len(picked))
	}

	seen := map[int]int{}
	for _, idx := range picked {
		seen[assignments[idx]]++
	}
	if len(seen) < 2 {
		t.Errorf("picks drawn from %d cluster(s), want at least 2", len(seen))
	}
	for c, count := range seen {
		if count > 2 { // ceil(10/5)
			t.Errorf("cluster %d contributed %d picks, want at most 2", c, count)
		}
	}
}

func TestStratifiedSample_NeverExceedsTarget(t *testing.T) {
	t.Parallel()

	assignments := []int{0, 0, 0, 0, 1}
	picked := StratifiedSample(assignments, 2, 3)
	if len(picked) > 3 {
		t.Errorf("want at most 3 picks, got %d", len(picked))
	}
}

// TestStratifiedSample_TopsUpSparseClusters verifies that an empty cluster
// does not leave the quota unmet when other clusters have spare members.
func TestStratifiedSample_TopsUpSparseClusters(t *testing.T) {
	t.Parallel()

	// Cluster 2 is empty; clusters 0 and 1 hold everything.
	assignments := []int{0, 0, 0, 0, 1, 1, 1, 1}
	picked := StratifiedSample(assignments, 3, 6)
	if len(picked) != 6 {
		t.Errorf("want 6 picks with top-up, got %d", len(picked))
	}
}

func TestStratifiedSample_PreservesOrderWithinCluster(t *testing.T) {
	t.Parallel()

	assignments := []int{1, 0, 1, 0, 1, 0}
	picked := StratifiedSample(assignments, 2, 4)

	// Within each cluster, picked indices must be ascending.
	lastByCluster := map[int]int{}
	for _, idx := range picked {
		c := assignments[idx]
		if prev, ok := lastByCluster[c]; ok && idx < prev {
			t.Errorf("cluster %d: index %d picked after %d", c, idx, prev)
		}
		lastByCluster[c] = idx
	}
}
