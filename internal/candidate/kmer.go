package candidate

import "slices"

// encode maps a base to its 2-bit code. Anything else is rejected upstream
// by the catalog.
var encode = [256]uint64{'A': 0, 'C': 1, 'G': 2, 'T': 3}

// sketch returns the distinct canonical k-mer minimizers of seq: for every
// window of w consecutive k-mers, the one with the smallest hash.
// Canonical k-mers make the sketch strand agnostic.
func sketch(seq string, k, w int) []uint64 {
	if k < 1 || k > 31 || len(seq) < k {
		return nil
	}

	mask := uint64(1)<<(2*uint(k)) - 1
	shift := 2 * uint(k-1)

	hashes := make([]uint64, 0, len(seq)-k+1)
	var fwd, rev uint64
	for i := 0; i < len(seq); i++ {
		c := encode[seq[i]]
		fwd = (fwd<<2 | c) & mask
		rev = rev>>2 | (3-c)<<shift
		if i >= k-1 {
			hashes = append(hashes, mix(min(fwd, rev)))
		}
	}

	var mins []uint64
	for start := 0; start+w <= len(hashes) || start == 0; start++ {
		end := min(start+w, len(hashes))
		mins = append(mins, slices.Min(hashes[start:end]))
		if end == len(hashes) {
			break
		}
	}

	slices.Sort(mins)
	return slices.Compact(mins)
}

// mix is the splitmix64 finalizer. It spreads k-mer codes so minimizers
// aren't biased towards poly-A.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
