package flac

import (
	"math"

	"github.com/olivier-w/mediastream/bitio"
	"github.com/olivier-w/mediastream/mediaerr"
)

// decodeResidual reads the Rice/Golomb-coded residual for one subframe
// (RFC 9639 §9) into output[predictorOrder:blockSize]; the warm-up samples
// occupying output[0:predictorOrder] are left untouched.
func decodeResidual(r *bitio.Reader, output []int32, blockSize, predictorOrder uint32) error {
	if predictorOrder >= blockSize {
		return mediaerr.New(mediaerr.Format, "flac.decodeResidual", "predictor order >= block size")
	}

	methodBits, err := r.ReadBits(2)
	if err != nil {
		return err
	}
	if methodBits > 1 {
		return mediaerr.New(mediaerr.Format, "flac.decodeResidual", "reserved residual coding method")
	}
	paramBits := 4
	if methodBits == 1 {
		paramBits = 5
	}
	escapeCode := uint32(1)<<uint(paramBits) - 1

	partitionOrder, err := r.ReadBits(4)
	if err != nil {
		return err
	}
	partitionCount := uint32(1) << partitionOrder
	if blockSize%partitionCount != 0 {
		return mediaerr.New(mediaerr.Format, "flac.decodeResidual", "block size not divisible by partition count")
	}
	samplesPerPartition := blockSize / partitionCount
	if samplesPerPartition < predictorOrder {
		return mediaerr.New(mediaerr.Format, "flac.decodeResidual", "first partition smaller than predictor order")
	}

	offset := predictorOrder
	for p := uint32(0); p < partitionCount; p++ {
		count := samplesPerPartition
		if p == 0 && predictorOrder > 0 {
			count = samplesPerPartition - predictorOrder
		}

		riceParam, err := r.ReadBits(paramBits)
		if err != nil {
			return err
		}

		if riceParam == escapeCode {
			escapeBits, err := r.ReadBits(5)
			if err != nil {
				return err
			}
			if escapeBits == 0 || escapeBits > 32 {
				return mediaerr.New(mediaerr.Format, "flac.decodeResidual", "invalid escape bit width")
			}
			for i := uint32(0); i < count; i++ {
				v, err := r.ReadSigned(int(escapeBits))
				if err != nil {
					return err
				}
				if v == math.MinInt32 {
					return mediaerr.New(mediaerr.Format, "flac.decodeResidual", "INT32_MIN residual forbidden")
				}
				output[offset+i] = v
			}
		} else {
			for i := uint32(0); i < count; i++ {
				v, err := decodeRiceCode(r, riceParam)
				if err != nil {
					return err
				}
				if v == math.MinInt32 {
					return mediaerr.New(mediaerr.Format, "flac.decodeResidual", "INT32_MIN residual forbidden")
				}
				output[offset+i] = v
			}
		}
		offset += count
	}

	if offset != blockSize {
		return mediaerr.New(mediaerr.Format, "flac.decodeResidual", "residual count mismatch")
	}
	return nil
}

func decodeRiceCode(r *bitio.Reader, riceParam uint32) (int32, error) {
	quotient, err := r.ReadUnary()
	if err != nil {
		return 0, err
	}
	var remainder uint32
	if riceParam > 0 {
		remainder, err = r.ReadBits(int(riceParam))
		if err != nil {
			return 0, err
		}
	}
	folded := (quotient << riceParam) | remainder
	return unfoldSigned(folded), nil
}

// unfoldSigned reverses FLAC's zigzag mapping: (v >> 1) ^ -(v & 1).
func unfoldSigned(folded uint32) int32 {
	return int32(folded>>1) ^ -int32(folded&1)
}
