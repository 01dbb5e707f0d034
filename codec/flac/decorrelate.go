package flac

// decorrelateLeftSide reconstructs the right channel from left/side pairs:
// R = L - S.
func decorrelateLeftSide(left, side []int32) {
	for i := range left {
		side[i] = left[i] - side[i]
	}
}

// decorrelateRightSide reconstructs the left channel from side/right pairs:
// L = R + S.
func decorrelateRightSide(side, right []int32) {
	for i := range side {
		side[i] = right[i] + side[i]
	}
}

// decorrelateMidSide reconstructs left/right from mid/side. The mid value
// is shifted left by one bit and OR'd with the side channel's parity bit to
// recover the lost precision bit before splitting: mid' = (mid<<1)|(side&1),
// L = (mid'+S)>>1, R = (mid'-S)>>1. This is exactly invertible: recomputing
// M' = (L+R)>>1, S' = L-R from the result reproduces the original (M, S).
func decorrelateMidSide(mid, side []int32) {
	for i := range mid {
		m := mid[i]
		s := side[i]
		midPrime := (m << 1) | (s & 1)
		mid[i] = (midPrime + s) >> 1
		side[i] = (midPrime - s) >> 1
	}
}
