package flac

import (
	"github.com/olivier-w/mediastream/bitio"
	"github.com/olivier-w/mediastream/mediaerr"
)

type subframeType int

const (
	subframeConstant subframeType = iota
	subframeVerbatim
	subframeFixed
	subframeLPC
)

// decodeSubframe reads one channel's subframe into a freshly allocated
// int32 slice of length blockSize, at the given bit depth (already adjusted
// for side channels needing one extra bit by the caller).
func decodeSubframe(r *bitio.Reader, blockSize uint32, bitsPerSample int) ([]int32, error) {
	padding, err := r.ReadBits(1)
	if err != nil {
		return nil, err
	}
	if padding != 0 {
		return nil, mediaerr.New(mediaerr.Format, "flac.decodeSubframe", "subframe padding bit must be 0")
	}

	typeCode, err := r.ReadBits(6)
	if err != nil {
		return nil, err
	}
	kind, order, err := decodeSubframeType(typeCode)
	if err != nil {
		return nil, err
	}

	hasWasted, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	var wasted int
	if hasWasted {
		u, err := r.ReadUnary()
		if err != nil {
			return nil, err
		}
		wasted = int(u) + 1
	}

	effectiveDepth := bitsPerSample - wasted
	if effectiveDepth <= 0 {
		return nil, mediaerr.New(mediaerr.Format, "flac.decodeSubframe", "wasted bits exceed bit depth")
	}

	out := make([]int32, blockSize)
	switch kind {
	case subframeConstant:
		v, err := r.ReadSigned(effectiveDepth)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = v
		}
	case subframeVerbatim:
		for i := range out {
			v, err := r.ReadSigned(effectiveDepth)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
	case subframeFixed:
		if err := decodeFixedSubframe(r, out, uint32(order), effectiveDepth); err != nil {
			return nil, err
		}
	case subframeLPC:
		if err := decodeLPCSubframe(r, out, uint32(order), effectiveDepth); err != nil {
			return nil, err
		}
	}

	if wasted > 0 {
		for i := range out {
			out[i] <<= uint(wasted)
		}
	}
	return out, nil
}

func decodeSubframeType(code uint32) (subframeType, int, error) {
	switch {
	case code == 0:
		return subframeConstant, 0, nil
	case code == 1:
		return subframeVerbatim, 0, nil
	case code >= 8 && code <= 12:
		return subframeFixed, int(code - 8), nil
	case code >= 32:
		return subframeLPC, int(code-32) + 1, nil
	default:
		return 0, 0, mediaerr.New(mediaerr.Format, "flac.decodeSubframeType", "reserved subframe type")
	}
}

func decodeFixedSubframe(r *bitio.Reader, out []int32, order uint32, depth int) error {
	for i := uint32(0); i < order; i++ {
		v, err := r.ReadSigned(depth)
		if err != nil {
			return err
		}
		out[i] = v
	}
	if err := decodeResidual(r, out, uint32(len(out)), order); err != nil {
		return err
	}
	applyFixedPredictor(out, order)
	return nil
}

// applyFixedPredictor adds back the fixed predictor's estimate to the
// residual already stored in out[order:], in 64-bit arithmetic to avoid
// overflow at extreme bit depths.
func applyFixedPredictor(out []int32, order uint32) {
	for n := int(order); n < len(out); n++ {
		var predicted int64
		switch order {
		case 0:
			predicted = 0
		case 1:
			predicted = int64(out[n-1])
		case 2:
			predicted = 2*int64(out[n-1]) - int64(out[n-2])
		case 3:
			predicted = 3*int64(out[n-1]) - 3*int64(out[n-2]) + int64(out[n-3])
		case 4:
			predicted = 4*int64(out[n-1]) - 6*int64(out[n-2]) + 4*int64(out[n-3]) - int64(out[n-4])
		}
		out[n] = int32(predicted + int64(out[n]))
	}
}

func decodeLPCSubframe(r *bitio.Reader, out []int32, order uint32, depth int) error {
	for i := uint32(0); i < order; i++ {
		v, err := r.ReadSigned(depth)
		if err != nil {
			return err
		}
		out[i] = v
	}

	precisionCode, err := r.ReadBits(4)
	if err != nil {
		return err
	}
	precision := int(precisionCode) + 1
	if precision > 15 {
		return mediaerr.New(mediaerr.Format, "flac.decodeLPCSubframe", "invalid coefficient precision")
	}

	shift, err := r.ReadSigned(5)
	if err != nil {
		return err
	}
	if shift < 0 {
		return mediaerr.New(mediaerr.Format, "flac.decodeLPCSubframe", "negative quantization shift unsupported")
	}

	coeffs := make([]int64, order)
	for i := uint32(0); i < order; i++ {
		c, err := r.ReadSigned(precision)
		if err != nil {
			return err
		}
		coeffs[i] = int64(c)
	}

	if err := decodeResidual(r, out, uint32(len(out)), order); err != nil {
		return err
	}
	applyLPCPredictor(out, order, coeffs, uint(shift))
	return nil
}

// applyLPCPredictor adds back the quantized-coefficient linear prediction
// to the residual already stored in out[order:], accumulating in 64-bit
// before the final right-shift by the quantization level.
func applyLPCPredictor(out []int32, order uint32, coeffs []int64, shift uint) {
	for n := int(order); n < len(out); n++ {
		var acc int64
		for k := uint32(0); k < order; k++ {
			acc += coeffs[k] * int64(out[n-1-int(k)])
		}
		predicted := acc >> shift
		out[n] = int32(predicted + int64(out[n]))
	}
}
