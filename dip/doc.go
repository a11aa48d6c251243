// Package dip implements Hartigan's dip test of unimodality.
//
// The dip statistic measures the maximum distance between the empirical
// distribution function of a univariate sample and the closest unimodal
// distribution function. It is turned into a p-value with one of three
// strategies:
//
//	p, err := dip.PValue(d, n, dip.StrategyTable, 0, nil)       // interpolated critical values
//	p, err := dip.PValue(d, n, dip.StrategyFunction, 0, nil)    // fitted logistic curve
//	p, err := dip.PValue(d, n, dip.StrategyBootstrap, 1000, rng) // uniform resampling
//
// A low p-value rejects the hypothesis that the sample is unimodal.
package dip
