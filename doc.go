// Package dipdeck implements Deep Embedded Clustering with k-Estimation
// (DipDECK).
//
// DipDECK trains an embedding network together with an overestimated set of
// clusters. After every epoch the clusters are recomputed in embedding
// space and each pair is projected onto the axis between its centers and
// tested for unimodality with Hartigan's dip test. Pairs whose dip p-value
// reaches the merge threshold are merged, so the cluster count shrinks
// until the remaining clusters are statistically separable. Cluster
// centers are always real samples (representatives).
//
// Basic usage:
//
//	net, err := autoencoder.New(autoencoder.Config{Layers: []int{dims, 64, 5}}, rng)
//	if err != nil {
//		return err
//	}
//	cfg := dipdeck.DefaultConfig()
//	cfg.InitialClusters = 20
//	cfg.PretrainEpochs = 100
//	result, err := dipdeck.Fit(x, net, cfg)
//	// result.Labels[i] is the cluster ID of sample i
//	// result.Centers holds one representative sample per cluster
//	// result.Merges lists every merge in order
//
// # Initial clustering
//
// The run is seeded by an [InitialClusterer] that declares how it is
// configured: [KMeans] takes a cluster count, [GaussianMixture] a
// component count and [DBSCAN] finds the count itself. Noise labels are
// assigned to the nearest derived center.
//
// # Cluster count bounds
//
// Merging stops at Config.MinClusters. When an epoch budget passes without
// a merge while more than Config.MaxClusters clusters remain, the smallest
// cluster is removed if it holds less than 20% of the mean cluster size;
// otherwise the pair with the highest dip p-value is merged regardless of
// the threshold.
package dipdeck
