package dipdeck

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const floatTol = 1e-10

// blobs draws size points around each center with the given standard
// deviation and returns them with their ground-truth labels.
func blobs(centers [][]float64, size int, sigma float64, seed uint64) (*mat.Dense, []int) {
	dims := len(centers[0])
	x := mat.NewDense(len(centers)*size, dims, nil)
	truth := make([]int, len(centers)*size)
	src := rand.NewPCG(seed, seed+1)
	for c, center := range centers {
		for i := 0; i < size; i++ {
			row := c*size + i
			truth[row] = c
			for d := 0; d < dims; d++ {
				x.Set(row, d, distuv.Normal{Mu: center[d], Sigma: sigma, Src: src}.Rand())
			}
		}
	}
	return x, truth
}

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func testDipOptions() DipOptions {
	return DipOptions{
		Strategy:       "table",
		Boots:          100,
		SizeDiffFactor: 2,
		MinSampleSize:  DefaultMinSampleSize,
		Workers:        4,
	}
}

// identityNetwork embeds samples as themselves and never changes, which
// turns DipDECK into deterministic center updates plus dip merges.
type identityNetwork struct {
	steps      int
	optimizers []*identityOptimizer
}

func (n *identityNetwork) Encode(x *mat.Dense) *mat.Dense { return mat.DenseCopyOf(x) }
func (n *identityNetwork) Decode(z *mat.Dense) *mat.Dense { return mat.DenseCopyOf(z) }

func (n *identityNetwork) Loss(x *mat.Dense) (float64, *mat.Dense, *mat.Dense) {
	return 0, mat.DenseCopyOf(x), mat.DenseCopyOf(x)
}

func (n *identityNetwork) NewOptimizer(float64) Optimizer {
	opt := &identityOptimizer{net: n}
	n.optimizers = append(n.optimizers, opt)
	return opt
}

type identityOptimizer struct {
	net        *identityNetwork
	objectives []*clusterObjective
}

func (o *identityOptimizer) Step(step TrainingStep, objective Objective) (StepLoss, error) {
	o.net.steps++
	var loss StepLoss
	if objective != nil {
		if obj, ok := objective.(*clusterObjective); ok {
			o.objectives = append(o.objectives, obj)
		}
		loss.Cluster = objective.Evaluate(step.Views, step.Anchors).Loss
	}
	loss.Total = loss.Cluster
	return loss, nil
}

// majorityPurity returns the fraction of samples whose label agrees with
// the majority label of their ground-truth group.
func majorityPurity(labels, truth []int) float64 {
	counts := map[[2]int]int{}
	for i := range labels {
		counts[[2]int{truth[i], labels[i]}]++
	}
	best := map[int]int{}
	for key, c := range counts {
		if c > best[key[0]] {
			best[key[0]] = c
		}
	}
	var agree int
	for _, c := range best {
		agree += c
	}
	return float64(agree) / float64(len(labels))
}

// stack concatenates the rows of the given matrices.
func stack(parts ...*mat.Dense) *mat.Dense {
	var rows int
	_, dims := parts[0].Dims()
	for _, p := range parts {
		r, _ := p.Dims()
		rows += r
	}
	out := mat.NewDense(rows, dims, nil)
	var at int
	for _, p := range parts {
		r, _ := p.Dims()
		out.Slice(at, at+r, 0, dims).(*mat.Dense).Copy(p)
		at += r
	}
	return out
}
