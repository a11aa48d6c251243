package dipdeck

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// AssignNearestParallel returns, for every row of points, the index of the
// nearest row of centers under squared Euclidean distance. Ties resolve to
// the lowest center index. numWorkers controls the degree of parallelism; if
// <= 1 the assignment runs on the calling goroutine.
func AssignNearestParallel(points, centers mat.Matrix, numWorkers int) []int {
	n, _ := points.Dims()
	k, _ := centers.Dims()
	labels := make([]int, n)
	if n == 0 || k == 0 {
		return labels
	}

	rows := make([][]float64, k)
	for j := range rows {
		rows[j] = mat.Row(nil, j, centers)
	}

	assign := func(start, end int) {
		for i := start; i < end; i++ {
			p := mat.Row(nil, i, points)
			best, bestDist := 0, math.Inf(1)
			for j, c := range rows {
				if d := squaredEuclidean(p, c); d < bestDist {
					best, bestDist = j, d
				}
			}
			labels[i] = best
		}
	}

	if numWorkers <= 1 || n <= 1 {
		assign(0, n)
		return labels
	}

	// Row ranges don't overlap, so no synchronization is needed for writes.
	var wg sync.WaitGroup
	rowsPerWorker := (n + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := min(startRow+rowsPerWorker, n)
		if startRow >= n {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			assign(start, end)
		}(startRow, endRow)
	}

	wg.Wait()
	return labels
}

// ClusterMeansParallel computes the mean of the rows of points assigned to
// each of k clusters. Clusters without members report ok[c] == false and a
// zero row. Each worker owns a contiguous range of clusters.
func ClusterMeansParallel(points mat.Matrix, labels []int, k, numWorkers int) (*mat.Dense, []bool) {
	_, dims := points.Dims()
	means := mat.NewDense(max(k, 1), max(dims, 1), nil)
	ok := make([]bool, k)
	if k == 0 {
		return &mat.Dense{}, ok
	}

	members := groupMembers(labels, k)
	mean := func(start, end int) {
		for c := start; c < end; c++ {
			if len(members[c]) == 0 {
				continue
			}
			row := means.RawRowView(c)
			for _, idx := range members[c] {
				for j := 0; j < dims; j++ {
					row[j] += points.At(idx, j)
				}
			}
			inv := 1 / float64(len(members[c]))
			for j := range row[:dims] {
				row[j] *= inv
			}
			ok[c] = true
		}
	}

	if numWorkers <= 1 || k <= 1 {
		mean(0, k)
		return means, ok
	}

	var wg sync.WaitGroup
	perWorker := (k + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		start := w * perWorker
		if start >= k {
			break
		}
		end := min(start+perWorker, k)
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			mean(start, end)
		}(start, end)
	}
	wg.Wait()
	return means, ok
}

// groupMembers returns the sample indices of each cluster in ascending
// order. Labels outside [0, k) are ignored.
func groupMembers(labels []int, k int) [][]int {
	members := make([][]int, k)
	for i, l := range labels {
		if l >= 0 && l < k {
			members[l] = append(members[l], i)
		}
	}
	return members
}
