package pointcloud

import "math/rand"

// BucketSample picks at most maxPoints indices out of [0, n): the range is split into contiguous
// buckets of ceil(n/maxPoints) indices and one index is drawn uniformly from each bucket. The
// result is ascending and depends only on n, maxPoints and the state of rng. When n <= maxPoints
// every index is returned and rng is not advanced.
func BucketSample(n, maxPoints int, rng *rand.Rand) []int {
	if n <= 0 {
		return nil
	}
	if maxPoints <= 0 || n <= maxPoints {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	bucketSize := (n + maxPoints - 1) / maxPoints
	ret := make([]int, 0, (n+bucketSize-1)/bucketSize)
	for from := 0; from < n; from += bucketSize {
		to := from + bucketSize
		if to > n {
			to = n
		}
		ret = append(ret, from+rng.Intn(to-from))
	}
	return ret
}
