package dipdeck

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Batch is a block of samples yielded by a Loader. Indices are positions in
// the full dataset.
type Batch struct {
	Indices   []int
	Data      *mat.Dense
	Augmented *mat.Dense
}

// Loader yields the batches of one pass over a dataset. Training loaders
// may shuffle; evaluation loaders must cover every sample exactly once.
type Loader interface {
	Batches() ([]Batch, error)
}

// Augmenter returns a transformed copy of a sample.
type Augmenter func(sample []float64, rng *rand.Rand) []float64

// SliceLoader serves batches from an in-memory matrix.
type SliceLoader struct {
	data      *mat.Dense
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	augment   Augmenter
}

// NewLoader returns a loader over the rows of data. Shuffling and
// augmentation draw from rng, which must be non-nil when either is used.
func NewLoader(data *mat.Dense, batchSize int, shuffle bool, rng *rand.Rand, augment Augmenter) *SliceLoader {
	return &SliceLoader{data: data, batchSize: batchSize, shuffle: shuffle, rng: rng, augment: augment}
}

// Batches returns the next pass over the data.
func (l *SliceLoader) Batches() ([]Batch, error) {
	if l.data == nil {
		return nil, errors.New("dipdeck: loader has no data")
	}
	if l.batchSize < 1 {
		return nil, fmt.Errorf("dipdeck: batch size must be >= 1, got %d", l.batchSize)
	}
	if (l.shuffle || l.augment != nil) && l.rng == nil {
		return nil, errors.New("dipdeck: shuffling or augmenting loader needs a random source")
	}

	n, dims := l.data.Dims()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	batches := make([]Batch, 0, (n+l.batchSize-1)/l.batchSize)
	for start := 0; start < n; start += l.batchSize {
		idx := order[start:min(start+l.batchSize, n)]
		b := Batch{
			Indices: append([]int(nil), idx...),
			Data:    mat.NewDense(len(idx), dims, nil),
		}
		if l.augment != nil {
			b.Augmented = mat.NewDense(len(idx), dims, nil)
		}
		for r, i := range idx {
			row := l.data.RawRowView(i)
			b.Data.SetRow(r, row)
			if l.augment != nil {
				aug := l.augment(append([]float64(nil), row...), l.rng)
				if len(aug) != dims {
					return nil, fmt.Errorf("dipdeck: augmenter returned %d values for a %d-dimensional sample", len(aug), dims)
				}
				b.Augmented.SetRow(r, aug)
			}
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// collectPass rebuilds the dataset from one evaluation pass, ordered by
// sample index.
func collectPass(l Loader) (*mat.Dense, error) {
	batches, err := l.Batches()
	if err != nil {
		return nil, fmt.Errorf("dipdeck: reading evaluation pass: %w", err)
	}
	n, dims := 0, -1
	for _, b := range batches {
		r, c := b.Data.Dims()
		if r != len(b.Indices) {
			return nil, fmt.Errorf("dipdeck: batch has %d rows but %d indices", r, len(b.Indices))
		}
		if dims >= 0 && c != dims {
			return nil, fmt.Errorf("dipdeck: inconsistent sample dimensionality %d and %d", dims, c)
		}
		dims = c
		n += r
	}
	if n == 0 {
		return nil, errors.New("dipdeck: evaluation pass is empty")
	}

	x := mat.NewDense(n, dims, nil)
	seen := make([]bool, n)
	for _, b := range batches {
		for r, idx := range b.Indices {
			if idx < 0 || idx >= n || seen[idx] {
				return nil, fmt.Errorf("dipdeck: evaluation pass has invalid or repeated index %d", idx)
			}
			seen[idx] = true
			x.SetRow(idx, b.Data.RawRowView(r))
		}
	}
	return x, nil
}

// encodeBatchwise embeds every sample of an evaluation pass and returns the
// embedding ordered by sample index along with the mean reconstruction loss
// over the batches.
func encodeBatchwise(l Loader, net Network, n int) (*mat.Dense, float64, error) {
	batches, err := l.Batches()
	if err != nil {
		return nil, 0, fmt.Errorf("dipdeck: reading evaluation pass: %w", err)
	}

	var (
		embedded *mat.Dense
		total    float64
		covered  int
	)
	for _, b := range batches {
		loss, z, _ := net.Loss(b.Data)
		r, dims := z.Dims()
		if r != len(b.Indices) {
			return nil, 0, fmt.Errorf("dipdeck: network embedded %d rows for a batch of %d", r, len(b.Indices))
		}
		if embedded == nil {
			embedded = mat.NewDense(n, dims, nil)
		}
		for i, idx := range b.Indices {
			if idx < 0 || idx >= n {
				return nil, 0, fmt.Errorf("dipdeck: evaluation index %d out of range [0, %d)", idx, n)
			}
			embedded.SetRow(idx, z.RawRowView(i))
		}
		total += loss
		covered += r
	}
	if covered != n {
		return nil, 0, fmt.Errorf("dipdeck: evaluation pass covered %d of %d samples", covered, n)
	}
	return embedded, total / float64(len(batches)), nil
}
