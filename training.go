package dipdeck

import (
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Phase is a state of the training loop.
type Phase int

const (
	PhasePretrainDone Phase = iota
	PhaseEpochRunning
	PhaseEpochEvaluated
	PhaseMergeCheck
	PhaseForceMergeCheck
	PhaseContinue
	PhaseTerminated
)

var phaseNames = [...]string{
	PhasePretrainDone:    "pretrain_done",
	PhaseEpochRunning:    "epoch_running",
	PhaseEpochEvaluated:  "epoch_evaluated",
	PhaseMergeCheck:      "merge_check",
	PhaseForceMergeCheck: "force_merge_check",
	PhaseContinue:        "continue",
	PhaseTerminated:      "terminated",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// removalFraction is the share of the mean cluster size below which the
// smallest cluster is removed instead of force-merged.
const removalFraction = 0.2

// trainingLoop alternates epochs of network training with recomputation of
// the cluster state and dip-driven merges.
type trainingLoop struct {
	cfg   Config
	net   Network
	opt   Optimizer
	state *ClusterState
	train Loader
	eval  Loader
	n     int
	log   zerolog.Logger

	phase Phase
	// iter counts epochs since the last merge.
	iter   int
	epochs int
	last   StepLoss
	recon  float64
	merges []MergeEvent
}

func (l *trainingLoop) run() error {
	l.phase = PhasePretrainDone
	l.cfg.Metrics.setClusters(l.state.NClusters)
	for l.phase != PhaseTerminated {
		next, err := l.step()
		if err != nil {
			return err
		}
		l.phase = next
	}
	l.log.Info().
		Int("clusters", l.state.NClusters).
		Int("epochs", l.epochs).
		Int("merges", len(l.merges)).
		Msg("training finished")
	return nil
}

// step executes the current phase and returns the next one.
func (l *trainingLoop) step() (Phase, error) {
	switch l.phase {
	case PhasePretrainDone:
		return PhaseEpochRunning, nil

	case PhaseEpochRunning:
		if err := l.runEpoch(); err != nil {
			return 0, err
		}
		return PhaseEpochEvaluated, nil

	case PhaseEpochEvaluated:
		if err := l.evaluate(); err != nil {
			return 0, err
		}
		l.iter++
		l.epochs++
		return PhaseMergeCheck, nil

	case PhaseMergeCheck:
		if err := l.mergeWhileInseparable(); err != nil {
			return 0, err
		}
		return PhaseForceMergeCheck, nil

	case PhaseForceMergeCheck:
		if l.iter == l.cfg.ClusteringEpochs && l.cfg.MaxClusters > 0 && l.state.NClusters > l.cfg.MaxClusters {
			if err := l.forceReduce(); err != nil {
				return 0, err
			}
		}
		return PhaseContinue, nil

	case PhaseContinue:
		if l.state.NClusters == 1 {
			l.log.Info().Msg("only one cluster left")
			return PhaseTerminated, nil
		}
		if l.iter < l.cfg.ClusteringEpochs {
			return PhaseEpochRunning, nil
		}
		return PhaseTerminated, nil
	}
	return 0, fmt.Errorf("dipdeck: training loop in unexpected phase %s", l.phase)
}

// runEpoch takes one optimizer step per training batch.
func (l *trainingLoop) runEpoch() error {
	costs := dipCostMatrix(l.state.DipMatrix)
	batches, err := l.train.Batches()
	if err != nil {
		return fmt.Errorf("dipdeck: reading training batches: %w", err)
	}
	for _, b := range batches {
		views := []*mat.Dense{b.Data}
		if l.cfg.AugmentationInvariance {
			if b.Augmented == nil {
				return fmt.Errorf("dipdeck: augmentation invariance needs augmented batches")
			}
			views = append(views, b.Augmented)
		}

		obj := &clusterObjective{weight: l.cfg.ClusterLossWeight, costs: costs}
		// Labels stay fixed during the first epoch after a reset.
		if l.iter == 0 {
			obj.fixed = make([]int, len(b.Indices))
			for i, idx := range b.Indices {
				obj.fixed[i] = l.state.Labels[idx]
			}
		}

		loss, err := l.opt.Step(TrainingStep{Views: views, Anchors: l.state.Centers}, obj)
		if err != nil {
			return fmt.Errorf("dipdeck: optimizer step: %w", err)
		}
		l.last = loss
	}
	return nil
}

// evaluate re-encodes the dataset and recomputes the cluster state.
func (l *trainingLoop) evaluate() error {
	embedded, recon, err := encodeBatchwise(l.eval, l.net, l.n)
	if err != nil {
		return err
	}
	l.recon = recon
	if err := l.state.Recompute(embedded, l.net.Encode(l.state.Centers)); err != nil {
		return err
	}

	maxDip, a, b, _ := l.state.MaxDip()
	l.log.Debug().
		Int("iteration", l.iter).
		Int("clusters", l.state.NClusters).
		Float64("reconstruction", l.last.Reconstruction).
		Float64("cluster", l.last.Cluster).
		Float64("total", l.last.Total).
		Float64("eval_reconstruction", recon).
		Float64("max_dip", maxDip).
		Ints("max_dip_pair", []int{a, b}).
		Msg("epoch evaluated")
	l.cfg.Metrics.observeEpoch(l.last, maxDip)
	return nil
}

// mergeWhileInseparable merges the highest-dip pair while its p-value
// reaches the threshold and more than MinClusters clusters remain.
func (l *trainingLoop) mergeWhileInseparable() error {
	for l.state.NClusters > l.cfg.MinClusters {
		p, a, b, ok := l.state.MaxDip()
		if !ok || p < l.cfg.MergeThreshold {
			return nil
		}
		l.iter = 0
		if err := l.merge(MergeNatural, a, b, p); err != nil {
			return err
		}
	}
	return nil
}

// forceReduce brings the cluster count down by one after the epoch budget
// ran out above MaxClusters: a cluster smaller than removalFraction of the
// mean size is removed, otherwise the highest-dip pair is merged.
func (l *trainingLoop) forceReduce() error {
	l.iter = 0
	sizes := l.state.Sizes()
	smallest, total := 0, 0
	for c, s := range sizes {
		total += s
		if s < sizes[smallest] {
			smallest = c
		}
	}
	mean := float64(total) / float64(len(sizes))

	if float64(sizes[smallest]) < removalFraction*mean {
		if err := l.state.RemoveCluster(smallest); err != nil {
			return err
		}
		l.record(MergeEvent{Kind: MergeRemoval, A: smallest, B: -1, Size: sizes[smallest]})
		return nil
	}

	p, a, b, ok := l.state.MaxDip()
	if !ok {
		return nil
	}
	return l.merge(MergeForced, a, b, p)
}

func (l *trainingLoop) merge(kind MergeKind, a, b int, p float64) error {
	sizes := l.state.Sizes()
	if err := l.state.Merge(a, b); err != nil {
		return err
	}
	l.record(MergeEvent{Kind: kind, A: a, B: b, PValue: p, Size: sizes[a] + sizes[b]})
	return nil
}

func (l *trainingLoop) record(ev MergeEvent) {
	ev.Epoch = l.epochs
	ev.NClusters = l.state.NClusters
	l.merges = append(l.merges, ev)
	l.cfg.Metrics.observeMerge(ev)

	e := l.log.Info()
	if ev.Kind == MergeRemoval {
		e = e.Int("cluster", ev.A)
	} else {
		e = e.Ints("pair", []int{ev.A, ev.B}).Float64("p_value", ev.PValue)
	}
	e.Str("kind", string(ev.Kind)).
		Int("size", ev.Size).
		Int("clusters", ev.NClusters).
		Int("epoch", ev.Epoch).
		Msg("clusters reduced")
}
