package dipdeck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "pretrain_done", PhasePretrainDone.String())
	assert.Equal(t, "force_merge_check", PhaseForceMergeCheck.String())
	assert.Equal(t, "terminated", PhaseTerminated.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}

func TestTraining_FixedLabelsOnlyAfterReset(t *testing.T) {
	x, _ := blobs(threeBlobCenters[:2], 100, 1, 30)
	net := &identityNetwork{}
	cfg := fitConfig(2)
	// Unshuffled, so the single batch is in dataset order.
	cfg.TrainLoader = NewLoader(x, 1000, false, nil, nil)

	res, err := Fit(x, net, cfg)
	require.NoError(t, err)
	require.Empty(t, res.Merges)

	objectives := net.optimizers[0].objectives
	require.Len(t, objectives, 3)
	assert.Equal(t, res.Initial.Labels, objectives[0].fixed)
	assert.Nil(t, objectives[1].fixed)
	assert.Nil(t, objectives[2].fixed)
}

func TestTraining_LabelsFixedAgainAfterMerge(t *testing.T) {
	x, _ := blobs([][]float64{{0}, {0.5}, {30}}, 300, 1, 31)
	net := &identityNetwork{}
	cfg := fitConfig(4)
	cfg.BatchSize = 10000

	res, err := Fit(x, net, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Merges)

	last := res.Merges[len(res.Merges)-1].Epoch
	objectives := net.optimizers[0].objectives
	require.Len(t, objectives, res.Epochs)
	// The epoch after the last merge starts from stored labels again.
	assert.NotNil(t, objectives[last].fixed)
	for _, o := range objectives[last+1:] {
		assert.Nil(t, o.fixed)
	}
}

func TestTraining_CostsFollowDipMatrix(t *testing.T) {
	x, _ := blobs(threeBlobCenters[:2], 100, 1, 32)
	net := &identityNetwork{}
	cfg := fitConfig(2)
	cfg.ClusteringEpochs = 1
	cfg.BatchSize = 1000

	res, err := Fit(x, net, cfg)
	require.NoError(t, err)

	costs := net.optimizers[0].objectives[0].costs
	p := res.DipMatrix.At(0, 1)
	// Rows of (dips + I) normalized to 1.
	assert.InDelta(t, 1/(1+p), costs.At(0, 0), 0.05)
	assert.InDelta(t, 1.0, costs.At(0, 0)+costs.At(0, 1), floatTol)
}
