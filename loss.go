package dipdeck

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// clusterObjective is the DipDECK cluster loss of one batch:
//
//	weight * mean_views( mean_b sum_k R[b,k] * ||e_b - c_k||^2 ) * (1 + std(d)) / mean(d)
//
// where c are the encoded representatives, R = onehot(labels) * costs and d
// are the non-zero distances between distinct centers (ordered pairs). The
// std is the sample standard deviation and is only used with more than two
// distances. Labels come from fixed when set, otherwise from the nearest
// center of the first (clean) view, and are shared by all views.
type clusterObjective struct {
	weight float64
	costs  *mat.Dense
	fixed  []int
}

var _ Objective = (*clusterObjective)(nil)

// centerDistance is the distance between two distinct centers.
type centerDistance struct {
	a, b int
	d    float64
}

// Evaluate implements Objective.
func (o *clusterObjective) Evaluate(embedded []*mat.Dense, anchors *mat.Dense) ObjectiveResult {
	k, dims := anchors.Dims()
	views := float64(len(embedded))
	res := ObjectiveResult{
		GradEmbedded: make([]*mat.Dense, len(embedded)),
		GradAnchors:  mat.NewDense(k, dims, nil),
	}
	for v, e := range embedded {
		r, c := e.Dims()
		res.GradEmbedded[v] = mat.NewDense(r, c, nil)
	}

	dists, mu, sigma := centerSpread(anchors)
	if len(dists) == 0 || mu == 0 {
		return res
	}
	scale := (1 + sigma) / mu

	labels := o.fixed
	if labels == nil {
		labels = AssignNearestParallel(embedded[0], anchors, 1)
	}

	// Per-view mean escape-weighted distance and the gradient of the scaled
	// loss with respect to the embeddings and the centers' positions.
	var spread float64
	for v, e := range embedded {
		b, _ := e.Dims()
		grad := res.GradEmbedded[v]
		coef := 2 * o.weight * scale / (views * float64(b))
		var sum float64
		for i := 0; i < b; i++ {
			row := e.RawRowView(i)
			weights := o.costs.RawRowView(labels[i])
			g := grad.RawRowView(i)
			for c := 0; c < k; c++ {
				w := weights[c]
				if w == 0 {
					continue
				}
				center := anchors.RawRowView(c)
				ga := res.GradAnchors.RawRowView(c)
				var sq float64
				for d := 0; d < dims; d++ {
					diff := row[d] - center[d]
					sq += diff * diff
					g[d] += coef * w * diff
					ga[d] -= coef * w * diff
				}
				sum += w * sq
			}
		}
		spread += sum / float64(b)
	}
	res.Loss = o.weight * scale * spread / views

	// The scale term depends on the centers through d.
	n := float64(len(dists))
	outer := o.weight * spread / views
	for _, cd := range dists {
		dScale := -(1 + sigma) / (mu * mu * n)
		if sigma > 0 {
			dScale += (cd.d - mu) / ((n - 1) * sigma * mu)
		}
		g := outer * dScale / cd.d
		ca, cb := anchors.RawRowView(cd.a), anchors.RawRowView(cd.b)
		ga, gb := res.GradAnchors.RawRowView(cd.a), res.GradAnchors.RawRowView(cd.b)
		for d := 0; d < dims; d++ {
			diff := ca[d] - cb[d]
			ga[d] += g * diff
			gb[d] -= g * diff
		}
	}
	return res
}

// centerSpread returns the non-zero distances between distinct centers
// (both orders of every pair), their mean and their sample standard
// deviation (0 unless more than two distances exist).
func centerSpread(centers *mat.Dense) ([]centerDistance, float64, float64) {
	k, _ := centers.Dims()
	var dists []centerDistance
	var sum float64
	for a := 0; a < k; a++ {
		for b := 0; b < k; b++ {
			if a == b {
				continue
			}
			sq := squaredEuclidean(centers.RawRowView(a), centers.RawRowView(b))
			if sq == 0 {
				continue
			}
			d := math.Sqrt(sq)
			dists = append(dists, centerDistance{a: a, b: b, d: d})
			sum += d
		}
	}
	if len(dists) == 0 {
		return nil, 0, 0
	}
	mu := sum / float64(len(dists))
	var sigma float64
	if len(dists) > 2 {
		var ss float64
		for _, cd := range dists {
			ss += (cd.d - mu) * (cd.d - mu)
		}
		sigma = math.Sqrt(ss / float64(len(dists)-1))
	}
	return dists, mu, sigma
}
