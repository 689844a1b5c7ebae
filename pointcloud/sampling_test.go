package pointcloud

import (
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestBucketSample(t *testing.T) {
	test.That(t, BucketSample(0, 10, rand.New(rand.NewSource(1))), test.ShouldBeEmpty)
	test.That(t, BucketSample(3, 10, rand.New(rand.NewSource(1))), test.ShouldResemble, []int{0, 1, 2})

	rng := rand.New(rand.NewSource(1))
	sample := BucketSample(1000, 100, rng)
	test.That(t, sample, test.ShouldHaveLength, 100)
	for i, idx := range sample {
		// one pick per bucket of 10.
		test.That(t, idx, test.ShouldBeGreaterThanOrEqualTo, i*10)
		test.That(t, idx, test.ShouldBeLessThan, (i+1)*10)
	}

	// uneven split leaves a shorter final bucket.
	sample = BucketSample(105, 10, rand.New(rand.NewSource(1)))
	test.That(t, sample, test.ShouldHaveLength, 10)
	test.That(t, sample[9], test.ShouldBeGreaterThanOrEqualTo, 99)
	test.That(t, sample[9], test.ShouldBeLessThan, 105)
}

func TestBucketSampleDeterministic(t *testing.T) {
	a := BucketSample(5000, 321, rand.New(rand.NewSource(99)))
	b := BucketSample(5000, 321, rand.New(rand.NewSource(99)))
	test.That(t, a, test.ShouldResemble, b)
}
