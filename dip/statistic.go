package dip

import "slices"

// Statistic returns the dip statistic of values. The input is not modified.
// Samples with fewer than two points or zero spread have a dip of 0.
func Statistic(values []float64) float64 {
	x := slices.Clone(values)
	slices.Sort(x)
	return StatisticSorted(x)
}

// StatisticSorted is Statistic for input already sorted in ascending order.
//
// The computation follows the greatest convex minorant / least concave
// majorant cycling of Hartigan & Hartigan (1985), using zero as the
// minimum dip of a degenerate sample. The result lies in [0, 0.25].
func StatisticSorted(x []float64) float64 {
	n := len(x)
	if n < 2 || x[n-1] == x[0] {
		return 0
	}

	// mn[j]: previous change point of the convex minorant ending at j.
	mn := make([]int, n)
	for j := 1; j < n; j++ {
		mn[j] = j - 1
		for {
			mnj := mn[j]
			mnmnj := mn[mnj]
			if mnj == 0 ||
				(x[j]-x[mnj])*float64(mnj-mnmnj) < (x[mnj]-x[mnmnj])*float64(j-mnj) {
				break
			}
			mn[j] = mnmnj
		}
	}

	// mj[k]: next change point of the concave majorant starting at k.
	mj := make([]int, n)
	mj[n-1] = n - 1
	for k := n - 2; k >= 0; k-- {
		mj[k] = k + 1
		for {
			mjk := mj[k]
			mjmjk := mj[mjk]
			if mjk == n-1 ||
				(x[k]-x[mjk])*float64(mjk-mjmjk) < (x[mjk]-x[mjmjk])*float64(k-mjk) {
				break
			}
			mj[k] = mjmjk
		}
	}

	gcm := make([]int, n+1)
	lcm := make([]int, n+1)
	low, high := 0, n-1
	dip := 0.0

	for {
		// Change points of the minorant from high down to low.
		gcm[0] = high
		i := 0
		for gcm[i] > low {
			gcm[i+1] = mn[gcm[i]]
			i++
		}
		ig, lGCM := i, i
		ix := ig - 1

		// Change points of the majorant from low up to high.
		lcm[0] = low
		i = 0
		for lcm[i] < high {
			lcm[i+1] = mj[lcm[i]]
			i++
		}
		ih, lLCM := i, i
		iv := 1

		// Largest distance between minorant and majorant on [low, high].
		d := 0.0
		if lGCM != 1 || lLCM != 1 {
			for {
				gcmix, lcmiv := gcm[ix], lcm[iv]
				if gcmix > lcmiv {
					gcmi1 := gcm[ix+1]
					dx := float64(lcmiv-gcmi1+1) -
						(x[lcmiv]-x[gcmi1])*float64(gcmix-gcmi1)/(x[gcmix]-x[gcmi1])
					iv++
					if dx >= d {
						d = dx
						ig = ix + 1
						ih = iv - 1
					}
				} else {
					lcmiv1 := lcm[iv-1]
					dx := (x[gcmix]-x[lcmiv1])*float64(lcmiv-lcmiv1)/(x[lcmiv]-x[lcmiv1]) -
						float64(gcmix-lcmiv1-1)
					ix--
					if dx >= d {
						d = dx
						ig = ix + 1
						ih = iv
					}
				}
				if ix < 0 {
					ix = 0
				}
				if iv > lLCM {
					iv = lLCM
				}
				if gcm[ix] == lcm[iv] {
					break
				}
			}
		}

		if d < dip {
			break
		}

		dipL := 0.0
		for j := ig; j < lGCM; j++ {
			maxT := 1.0
			jb, je := gcm[j+1], gcm[j]
			if je-jb > 1 && x[je] != x[jb] {
				c := float64(je-jb) / (x[je] - x[jb])
				for jj := jb; jj <= je; jj++ {
					if t := float64(jj-jb+1) - (x[jj]-x[jb])*c; t > maxT {
						maxT = t
					}
				}
			}
			dipL = max(dipL, maxT)
		}

		dipU := 0.0
		for j := ih; j < lLCM; j++ {
			maxT := 1.0
			jb, je := lcm[j], lcm[j+1]
			if je-jb > 1 && x[je] != x[jb] {
				c := float64(je-jb) / (x[je] - x[jb])
				for jj := jb; jj <= je; jj++ {
					if t := (x[jj]-x[jb])*c - float64(jj-jb-1); t > maxT {
						maxT = t
					}
				}
			}
			dipU = max(dipU, maxT)
		}

		dip = max(dip, dipL, dipU)

		// Without this check the cycle may not terminate.
		if low == gcm[ig] && high == lcm[ih] {
			break
		}
		low, high = gcm[ig], lcm[ih]
	}

	return dip / float64(2*n)
}
