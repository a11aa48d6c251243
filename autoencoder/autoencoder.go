// Package autoencoder provides a fully connected autoencoder on gonum
// matrices, trained with hand-written backpropagation and Adam. It
// implements dipdeck.Network.
package autoencoder

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/TrevorS/dipdeck"
)

// Activation names a hidden-layer nonlinearity.
type Activation string

const (
	ReLU    Activation = "relu"
	Tanh    Activation = "tanh"
	Sigmoid Activation = "sigmoid"
	Linear  Activation = "linear"
)

// Config describes the network.
type Config struct {
	// Layers lists the encoder widths from the input dimension to the
	// embedding size. The decoder mirrors them. At least two entries.
	Layers []int

	// Activation is used by every hidden layer. The embedding and the
	// reconstruction are linear. Default: ReLU.
	Activation Activation

	// Adam parameters. Defaults: 0.9, 0.999, 1e-8.
	Beta1, Beta2, Epsilon float64
}

// Autoencoder is a symmetric multilayer perceptron autoencoder.
type Autoencoder struct {
	cfg      Config
	layers   []*layer
	nEncoder int
}

var _ dipdeck.Network = (*Autoencoder)(nil)

type layer struct {
	w   *mat.Dense // in × out
	b   []float64
	act Activation
}

// New builds an autoencoder with Glorot-uniform weights drawn from rng.
func New(cfg Config, rng *rand.Rand) (*Autoencoder, error) {
	if len(cfg.Layers) < 2 {
		return nil, fmt.Errorf("autoencoder: need at least input and embedding sizes, got %v", cfg.Layers)
	}
	for _, w := range cfg.Layers {
		if w < 1 {
			return nil, fmt.Errorf("autoencoder: layer sizes must be >= 1, got %v", cfg.Layers)
		}
	}
	if rng == nil {
		return nil, errors.New("autoencoder: nil random source")
	}
	if cfg.Activation == "" {
		cfg.Activation = ReLU
	}
	switch cfg.Activation {
	case ReLU, Tanh, Sigmoid, Linear:
	default:
		return nil, fmt.Errorf("autoencoder: unknown activation %q", cfg.Activation)
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}

	sizes := append([]int(nil), cfg.Layers...)
	for i := len(cfg.Layers) - 2; i >= 0; i-- {
		sizes = append(sizes, cfg.Layers[i])
	}
	a := &Autoencoder{cfg: cfg, nEncoder: len(cfg.Layers) - 1}
	for i := 0; i+1 < len(sizes); i++ {
		in, out := sizes[i], sizes[i+1]
		limit := math.Sqrt(6 / float64(in+out))
		dist := distuv.Uniform{Min: -limit, Max: limit, Src: rng}
		w := mat.NewDense(in, out, nil)
		raw := w.RawMatrix().Data
		for j := range raw {
			raw[j] = dist.Rand()
		}
		act := cfg.Activation
		if i == a.nEncoder-1 || i == len(sizes)-2 {
			act = Linear
		}
		a.layers = append(a.layers, &layer{w: w, b: make([]float64, out), act: act})
	}
	return a, nil
}

// EmbeddingSize returns the width of the embedding.
func (a *Autoencoder) EmbeddingSize() int { return a.cfg.Layers[len(a.cfg.Layers)-1] }

// Encode implements dipdeck.Network.
func (a *Autoencoder) Encode(x *mat.Dense) *mat.Dense {
	return a.forward(x, 0, a.nEncoder).out
}

// Decode implements dipdeck.Network.
func (a *Autoencoder) Decode(z *mat.Dense) *mat.Dense {
	return a.forward(z, a.nEncoder, len(a.layers)).out
}

// Loss implements dipdeck.Network with the mean squared reconstruction
// error.
func (a *Autoencoder) Loss(x *mat.Dense) (float64, *mat.Dense, *mat.Dense) {
	z := a.Encode(x)
	r := a.Decode(z)
	return meanSquaredError(r, x), z, r
}

// NewOptimizer implements dipdeck.Network.
func (a *Autoencoder) NewOptimizer(learningRate float64) dipdeck.Optimizer {
	return newAdam(a, learningRate)
}

// pass caches the activations of a forward run over layers [from, to).
type pass struct {
	from   int
	inputs []*mat.Dense
	pre    []*mat.Dense
	out    *mat.Dense
}

func (a *Autoencoder) forward(x *mat.Dense, from, to int) pass {
	p := pass{from: from}
	h := x
	for _, l := range a.layers[from:to] {
		rows, _ := h.Dims()
		_, out := l.w.Dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(h, l.w)
		for i := 0; i < rows; i++ {
			row := z.RawRowView(i)
			for j := range row {
				row[j] += l.b[j]
			}
		}
		next := mat.NewDense(rows, out, nil)
		next.Apply(func(_, _ int, v float64) float64 { return activate(l.act, v) }, z)
		p.inputs = append(p.inputs, h)
		p.pre = append(p.pre, z)
		h = next
	}
	p.out = h
	return p
}

// backward accumulates the parameter gradients of a pass given the
// gradient of its output and returns the gradient of its input.
func (a *Autoencoder) backward(p pass, dOut *mat.Dense, grads []*layerGrad) *mat.Dense {
	d := dOut
	for k := len(p.pre) - 1; k >= 0; k-- {
		li := p.from + k
		l := a.layers[li]
		var delta mat.Dense
		delta.Apply(func(i, j int, v float64) float64 {
			return v * derivative(l.act, p.pre[k].At(i, j))
		}, d)

		var gw mat.Dense
		gw.Mul(p.inputs[k].T(), &delta)
		grads[li].w.Add(grads[li].w, &gw)
		rows, _ := delta.Dims()
		for i := 0; i < rows; i++ {
			for j, v := range delta.RawRowView(i) {
				grads[li].b[j] += v
			}
		}

		var din mat.Dense
		din.Mul(&delta, l.w.T())
		d = &din
	}
	return d
}

func activate(act Activation, v float64) float64 {
	switch act {
	case ReLU:
		return math.Max(0, v)
	case Tanh:
		return math.Tanh(v)
	case Sigmoid:
		return 1 / (1 + math.Exp(-v))
	default:
		return v
	}
}

func derivative(act Activation, pre float64) float64 {
	switch act {
	case ReLU:
		if pre > 0 {
			return 1
		}
		return 0
	case Tanh:
		t := math.Tanh(pre)
		return 1 - t*t
	case Sigmoid:
		s := 1 / (1 + math.Exp(-pre))
		return s * (1 - s)
	default:
		return 1
	}
}

func meanSquaredError(r, x *mat.Dense) float64 {
	rows, cols := x.Dims()
	var sum float64
	for i := 0; i < rows; i++ {
		xr, rr := x.RawRowView(i), r.RawRowView(i)
		for j := range xr {
			d := rr[j] - xr[j]
			sum += d * d
		}
	}
	return sum / float64(rows*cols)
}
