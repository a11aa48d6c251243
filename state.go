package dipdeck

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// ClusterState owns the mutable clustering of a run: labels, representative
// centers in both spaces and the dip matrix. It is mutated only between
// training epochs, by Recompute, Merge and RemoveCluster.
type ClusterState struct {
	// Labels holds one cluster id in [0, NClusters) per sample.
	Labels []int

	// Representatives are the dataset indices of the cluster centers.
	Representatives []int

	// Centers are the original-space rows of the representatives.
	Centers *mat.Dense

	// EmbeddedCenters are the representatives in embedding space.
	EmbeddedCenters *mat.Dense

	// DipMatrix holds the pairwise dip p-values of the current clusters.
	DipMatrix *mat.SymDense

	NClusters int

	data     *mat.Dense
	embedded *mat.Dense
	index    SpatialIndex
	opts     DipOptions
	rng      *rand.Rand
}

// NewClusterState builds the state for the given labels and optimal
// embedded centers (one row per cluster). Centers are snapped to their
// nearest embedded samples and the dip matrix is computed.
func NewClusterState(data, embedded *mat.Dense, labels []int, optimalCenters *mat.Dense, opts DipOptions, rng *rand.Rand) (*ClusterState, error) {
	n, _ := data.Dims()
	if r, _ := embedded.Dims(); r != n {
		return nil, fmt.Errorf("dipdeck: %d embedded rows for %d samples", r, n)
	}
	if len(labels) != n {
		return nil, fmt.Errorf("dipdeck: %d labels for %d samples", len(labels), n)
	}
	k, _ := optimalCenters.Dims()
	for i, l := range labels {
		if l < 0 || l >= k {
			return nil, fmt.Errorf("dipdeck: label %d of sample %d outside [0, %d)", l, i, k)
		}
	}

	s := &ClusterState{
		Labels:    append([]int(nil), labels...),
		NClusters: k,
		data:      data,
		opts:      opts,
		rng:       rng,
	}
	s.setEmbedding(embedded)
	s.snap(optimalCenters)
	if err := s.refreshDips(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ClusterState) setEmbedding(embedded *mat.Dense) {
	s.embedded = embedded
	n, dims := embedded.Dims()
	s.index = mustSpatialIndex(flatten(embedded), n, dims)
}

// snap replaces the centers with the samples nearest to the optimal
// embedded centers.
func (s *ClusterState) snap(optimal *mat.Dense) {
	k, _ := optimal.Dims()
	reps := make([]int, k)
	for c := range reps {
		reps[c], _ = s.index.Nearest(optimal.RawRowView(c))
	}
	s.setRepresentatives(reps)
}

func (s *ClusterState) setRepresentatives(reps []int) {
	_, dims := s.data.Dims()
	_, edims := s.embedded.Dims()
	s.Representatives = reps
	s.Centers = mat.NewDense(len(reps), dims, nil)
	s.EmbeddedCenters = mat.NewDense(len(reps), edims, nil)
	for c, idx := range reps {
		s.Centers.SetRow(c, s.data.RawRowView(idx))
		s.EmbeddedCenters.SetRow(c, s.embedded.RawRowView(idx))
	}
}

func (s *ClusterState) refreshDips() error {
	m, err := ComputeDipMatrix(s.embedded, s.EmbeddedCenters, s.Labels, s.NClusters, s.opts, s.rng)
	if err != nil {
		return err
	}
	s.DipMatrix = m
	return nil
}

// recenter sets every cluster's center to the sample nearest to the mean of
// its embedded members. Empty clusters keep their representative.
func (s *ClusterState) recenter(previous []int) {
	means, ok := ClusterMeansParallel(s.embedded, s.Labels, s.NClusters, s.opts.Workers)
	reps := make([]int, s.NClusters)
	for c := range reps {
		if ok[c] {
			reps[c], _ = s.index.Nearest(means.RawRowView(c))
		} else {
			reps[c] = previous[c]
		}
	}
	s.setRepresentatives(reps)
}

// Recompute adopts a fresh embedding of the dataset. Labels are reassigned
// to the nearest of embeddedCenters (the current representatives encoded by
// the updated network), centers are moved to the samples nearest to the
// cluster means and the dip matrix is recomputed.
func (s *ClusterState) Recompute(embedded, embeddedCenters *mat.Dense) error {
	if r, _ := embedded.Dims(); r != len(s.Labels) {
		return fmt.Errorf("dipdeck: %d embedded rows for %d samples", r, len(s.Labels))
	}
	if r, _ := embeddedCenters.Dims(); r != s.NClusters {
		return fmt.Errorf("dipdeck: %d embedded centers for %d clusters", r, s.NClusters)
	}
	s.setEmbedding(embedded)
	s.Labels = AssignNearestParallel(embedded, embeddedCenters, s.opts.Workers)
	s.recenter(s.Representatives)
	return s.refreshDips()
}

// Sizes returns the number of members of every cluster.
func (s *ClusterState) Sizes() []int {
	sizes := make([]int, s.NClusters)
	for _, l := range s.Labels {
		sizes[l]++
	}
	return sizes
}

// MaxDip returns the largest off-diagonal dip p-value and its pair (a < b).
// ok is false when fewer than two clusters exist. The first pair in
// row-major order wins ties.
func (s *ClusterState) MaxDip() (p float64, a, b int, ok bool) {
	p = -1
	for i := 0; i < s.NClusters-1; i++ {
		for j := i + 1; j < s.NClusters; j++ {
			if v := s.DipMatrix.At(i, j); v > p {
				p, a, b, ok = v, i, j, true
			}
		}
	}
	return p, a, b, ok
}

// Clone returns a deep copy of the state. The embedding, dataset and
// random source are shared.
func (s *ClusterState) Clone() *ClusterState {
	c := *s
	c.Labels = append([]int(nil), s.Labels...)
	c.Representatives = append([]int(nil), s.Representatives...)
	c.Centers = mat.DenseCopyOf(s.Centers)
	c.EmbeddedCenters = mat.DenseCopyOf(s.EmbeddedCenters)
	c.DipMatrix = mat.NewSymDense(s.NClusters, nil)
	c.DipMatrix.CopySym(s.DipMatrix)
	return &c
}

// Check verifies the state invariants: labels in [0, NClusters), one
// representative and center row per cluster, and a dip matrix of matching
// size.
func (s *ClusterState) Check() error {
	for i, l := range s.Labels {
		if l < 0 || l >= s.NClusters {
			return fmt.Errorf("dipdeck: label %d of sample %d outside [0, %d)", l, i, s.NClusters)
		}
	}
	if len(s.Representatives) != s.NClusters {
		return fmt.Errorf("dipdeck: %d representatives for %d clusters", len(s.Representatives), s.NClusters)
	}
	if r, _ := s.Centers.Dims(); r != s.NClusters {
		return fmt.Errorf("dipdeck: %d centers for %d clusters", r, s.NClusters)
	}
	if r, _ := s.EmbeddedCenters.Dims(); r != s.NClusters {
		return fmt.Errorf("dipdeck: %d embedded centers for %d clusters", r, s.NClusters)
	}
	if s.DipMatrix.SymmetricDim() != s.NClusters {
		return fmt.Errorf("dipdeck: dip matrix of size %d for %d clusters", s.DipMatrix.SymmetricDim(), s.NClusters)
	}
	return nil
}
