package dipdeck

import "gonum.org/v1/gonum/mat"

// Network is the embedding model trained by DipDECK. Rows of the matrices
// are samples. Implementations must be differentiable end to end; the
// optimizer returned by NewOptimizer owns the gradient computation.
type Network interface {
	// Encode maps samples to embedding space.
	Encode(x *mat.Dense) *mat.Dense
	// Decode maps embeddings back to the original space.
	Decode(z *mat.Dense) *mat.Dense
	// Loss returns the reconstruction loss of x together with its embedding
	// and reconstruction.
	Loss(x *mat.Dense) (loss float64, embedded, reconstructed *mat.Dense)
	// NewOptimizer returns an optimizer over the network parameters.
	NewOptimizer(learningRate float64) Optimizer
}

// TrainingStep is the input of a single optimizer step.
type TrainingStep struct {
	// Views holds the batch as seen by the network: the clean samples first,
	// followed by the augmented samples when augmentation invariance is on.
	// The reconstruction loss is averaged over all views.
	Views []*mat.Dense
	// Anchors are original-space samples that are encoded alongside the
	// batch (the cluster representatives). May be nil.
	Anchors *mat.Dense
}

// Optimizer takes gradient steps on a Network.
type Optimizer interface {
	// Step runs a forward pass over step, adds the objective to the
	// reconstruction loss, backpropagates and updates the parameters.
	// A nil objective trains on reconstruction only.
	Step(step TrainingStep, objective Objective) (StepLoss, error)
}

// Objective is an additional loss term defined on embeddings.
type Objective interface {
	// Evaluate receives the embedding of every view and of the anchors and
	// returns the loss with its gradients with respect to those embeddings.
	Evaluate(embedded []*mat.Dense, embeddedAnchors *mat.Dense) ObjectiveResult
}

// ObjectiveResult is the value and gradients of an Objective.
type ObjectiveResult struct {
	Loss         float64
	GradEmbedded []*mat.Dense
	GradAnchors  *mat.Dense
}

// StepLoss reports the loss terms of one optimizer step.
type StepLoss struct {
	Reconstruction float64
	Cluster        float64
	Total          float64
}
