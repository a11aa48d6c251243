package autoencoder

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/TrevorS/dipdeck"
)

type layerGrad struct {
	w *mat.Dense
	b []float64
}

// Adam optimizes all parameters of an Autoencoder.
type Adam struct {
	net  *Autoencoder
	lr   float64
	t    int
	m, v []*layerGrad
}

var _ dipdeck.Optimizer = (*Adam)(nil)

func newAdam(net *Autoencoder, lr float64) *Adam {
	return &Adam{net: net, lr: lr, m: net.zeroGrads(), v: net.zeroGrads()}
}

func (a *Autoencoder) zeroGrads() []*layerGrad {
	grads := make([]*layerGrad, len(a.layers))
	for i, l := range a.layers {
		r, c := l.w.Dims()
		grads[i] = &layerGrad{w: mat.NewDense(r, c, nil), b: make([]float64, len(l.b))}
	}
	return grads
}

// Step implements dipdeck.Optimizer. The reconstruction loss is the mean
// squared error averaged over the views; the objective, if any, is added
// on top and its embedding gradients are backpropagated through the
// encoder, including the encoding of the anchors.
func (o *Adam) Step(step dipdeck.TrainingStep, objective dipdeck.Objective) (dipdeck.StepLoss, error) {
	loss, grads, err := o.net.gradients(step, objective)
	if err != nil {
		return loss, err
	}
	o.apply(grads)
	return loss, nil
}

// gradients returns the loss of a step and its gradient with respect to
// every parameter.
func (a *Autoencoder) gradients(step dipdeck.TrainingStep, objective dipdeck.Objective) (dipdeck.StepLoss, []*layerGrad, error) {
	if len(step.Views) == 0 {
		return dipdeck.StepLoss{}, nil, errors.New("autoencoder: step without data")
	}
	in := a.cfg.Layers[0]
	for _, x := range step.Views {
		if _, c := x.Dims(); c != in {
			return dipdeck.StepLoss{}, nil, fmt.Errorf("autoencoder: expected %d features, got %d", in, c)
		}
	}
	if objective != nil && step.Anchors == nil {
		return dipdeck.StepLoss{}, nil, errors.New("autoencoder: objective needs anchors")
	}

	grads := a.zeroGrads()
	views := float64(len(step.Views))

	encoded := make([]pass, len(step.Views))
	embedded := make([]*mat.Dense, len(step.Views))
	dEmbedded := make([]*mat.Dense, len(step.Views))
	var loss dipdeck.StepLoss
	for v, x := range step.Views {
		encoded[v] = a.forward(x, 0, a.nEncoder)
		embedded[v] = encoded[v].out
		decoded := a.forward(embedded[v], a.nEncoder, len(a.layers))

		rows, cols := x.Dims()
		loss.Reconstruction += meanSquaredError(decoded.out, x) / views
		dOut := mat.NewDense(rows, cols, nil)
		dOut.Sub(decoded.out, x)
		dOut.Scale(2/(float64(rows*cols)*views), dOut)
		dEmbedded[v] = a.backward(decoded, dOut, grads)
	}

	if objective != nil {
		anchors := a.forward(step.Anchors, 0, a.nEncoder)
		res := objective.Evaluate(embedded, anchors.out)
		loss.Cluster = res.Loss
		for v, g := range res.GradEmbedded {
			if g != nil {
				dEmbedded[v].Add(dEmbedded[v], g)
			}
		}
		if res.GradAnchors != nil {
			a.backward(anchors, res.GradAnchors, grads)
		}
	}
	loss.Total = loss.Reconstruction + loss.Cluster
	if math.IsNaN(loss.Total) || math.IsInf(loss.Total, 0) {
		return loss, nil, fmt.Errorf("autoencoder: non-finite loss %v", loss.Total)
	}

	for v := range step.Views {
		a.backward(encoded[v], dEmbedded[v], grads)
	}
	return loss, grads, nil
}

// apply performs one bias-corrected Adam update.
func (o *Adam) apply(grads []*layerGrad) {
	cfg := o.net.cfg
	o.t++
	c1 := 1 - math.Pow(cfg.Beta1, float64(o.t))
	c2 := 1 - math.Pow(cfg.Beta2, float64(o.t))
	update := func(param, grad, m, v []float64) {
		for i, g := range grad {
			m[i] = cfg.Beta1*m[i] + (1-cfg.Beta1)*g
			v[i] = cfg.Beta2*v[i] + (1-cfg.Beta2)*g*g
			param[i] -= o.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + cfg.Epsilon)
		}
	}
	for i, l := range o.net.layers {
		update(l.w.RawMatrix().Data, grads[i].w.RawMatrix().Data, o.m[i].w.RawMatrix().Data, o.v[i].w.RawMatrix().Data)
		update(l.b, grads[i].b, o.m[i].b, o.v[i].b)
	}
}
