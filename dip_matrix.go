package dipdeck

import (
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/TrevorS/dipdeck/dip"
)

// DefaultMinSampleSize is the smallest combined sample the size-imbalance
// correction tries to keep.
const DefaultMinSampleSize = 50

// DipOptions controls the computation of a dip matrix.
type DipOptions struct {
	Strategy dip.Strategy
	Boots    int

	// SizeDiffFactor triggers the size-imbalance correction when one
	// cluster has more than SizeDiffFactor times the other's members.
	SizeDiffFactor float64

	// MinSampleSize is the combined sample size the trimmed pair is raised
	// to when the smaller cluster is tiny.
	MinSampleSize int

	Workers int
}

// ComputeDipMatrix returns the symmetric matrix of dip p-values between all
// pairs of the nClusters clusters. For a pair (i, j) the members of both
// clusters are projected onto embeddedCenters[i] - embeddedCenters[j] and
// dip-tested. If the clusters differ in size by more than
// opts.SizeDiffFactor, the test is repeated with the larger cluster trimmed
// to its members nearest to the smaller cluster's center and the smaller
// p-value is kept. The diagonal is zero.
//
// rng is only used by the bootstrap strategy. One seed per pair is drawn
// from it in pair order before the pairs are tested concurrently, so the
// result does not depend on opts.Workers.
func ComputeDipMatrix(embedded, embeddedCenters *mat.Dense, labels []int, nClusters int, opts DipOptions, rng *rand.Rand) (*mat.SymDense, error) {
	if nClusters < 1 {
		return nil, fmt.Errorf("dipdeck: dip matrix needs at least one cluster, got %d", nClusters)
	}
	if r, _ := embeddedCenters.Dims(); r != nClusters {
		return nil, fmt.Errorf("dipdeck: %d embedded centers for %d clusters", r, nClusters)
	}
	if opts.Strategy == dip.StrategyBootstrap && rng == nil {
		return nil, fmt.Errorf("dipdeck: bootstrap p-values need a random source")
	}

	members := groupMembers(labels, nClusters)
	type pair struct {
		i, j   int
		s1, s2 uint64
	}
	pairs := make([]pair, 0, nClusters*(nClusters-1)/2)
	for i := 0; i < nClusters-1; i++ {
		for j := i + 1; j < nClusters; j++ {
			p := pair{i: i, j: j}
			if opts.Strategy == dip.StrategyBootstrap {
				p.s1, p.s2 = rng.Uint64(), rng.Uint64()
			}
			pairs = append(pairs, p)
		}
	}

	pvals := make([]float64, len(pairs))
	var g errgroup.Group
	g.SetLimit(max(opts.Workers, 1))
	for k, p := range pairs {
		g.Go(func() error {
			var pairRng *rand.Rand
			if opts.Strategy == dip.StrategyBootstrap {
				pairRng = rand.New(rand.NewPCG(p.s1, p.s2))
			}
			pv, err := pairPValue(embedded, embeddedCenters, members[p.i], members[p.j], p.i, p.j, opts, pairRng)
			if err != nil {
				return fmt.Errorf("dipdeck: dip test of clusters %d and %d: %w", p.i, p.j, err)
			}
			pvals[k] = pv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := mat.NewSymDense(nClusters, nil)
	for k, p := range pairs {
		m.SetSym(p.i, p.j, pvals[k])
	}
	return m, nil
}

// pairPValue dip-tests clusters i and j, applying the size-imbalance
// correction when needed.
func pairPValue(embedded, centers *mat.Dense, inI, inJ []int, i, j int, opts DipOptions, rng *rand.Rand) (float64, error) {
	ci, cj := centers.RawRowView(i), centers.RawRowView(j)
	axis := make([]float64, len(ci))
	for d := range axis {
		axis[d] = ci[d] - cj[d]
	}

	_, p, err := dip.Test(project(embedded, axis, inI, inJ), opts.Strategy, opts.Boots, rng)
	if err != nil {
		return 0, err
	}

	ni, nj := float64(len(inI)), float64(len(inJ))
	switch {
	case ni > nj*opts.SizeDiffFactor:
		inI = nearestMembers(embedded, inI, cj, len(inJ), opts)
	case nj > ni*opts.SizeDiffFactor:
		inJ = nearestMembers(embedded, inJ, ci, len(inI), opts)
	default:
		return p, nil
	}

	_, trimmed, err := dip.Test(project(embedded, axis, inI, inJ), opts.Strategy, opts.Boots, rng)
	if err != nil {
		return 0, err
	}
	return min(p, trimmed), nil
}

// project returns the dot products of the given embedded rows with axis.
func project(embedded *mat.Dense, axis []float64, groups ...[]int) []float64 {
	var n int
	for _, g := range groups {
		n += len(g)
	}
	out := make([]float64, 0, n)
	for _, g := range groups {
		for _, idx := range g {
			row := embedded.RawRowView(idx)
			var dot float64
			for d, a := range axis {
				dot += row[d] * a
			}
			out = append(out, dot)
		}
	}
	return out
}

// nearestMembers trims the members of the larger cluster to the
// SizeDiffFactor*smaller of them nearest to center. When that leaves fewer
// than MinSampleSize samples in total, it keeps
// min(MinSampleSize-smaller, len(members)) instead.
func nearestMembers(embedded *mat.Dense, members []int, center []float64, smaller int, opts DipOptions) []int {
	sample := int(float64(smaller) * opts.SizeDiffFactor)
	if smaller+sample < opts.MinSampleSize {
		sample = min(opts.MinSampleSize-smaller, len(members))
	}
	sample = min(sample, len(members))
	if sample <= 0 {
		return nil
	}

	_, dims := embedded.Dims()
	flat := make([]float64, 0, len(members)*dims)
	for _, idx := range members {
		flat = append(flat, embedded.RawRowView(idx)...)
	}
	tree := mustSpatialIndex(flat, len(members), dims)
	nearest, _ := tree.QueryKNN(center, 1, sample)

	out := make([]int, len(nearest[0]))
	for k, pos := range nearest[0] {
		out[k] = members[pos]
	}
	return out
}
