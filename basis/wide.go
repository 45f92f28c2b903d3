package basis

import (
	"encoding/binary"
	"math"
	"math/big"
)

// binary128 layout
const (
	f128ExpBits  = 15
	f128Bias     = 16383
	f128MantBits = 112
	f128ExpMask  = 1<<f128ExpBits - 1
	f128HiMant   = 1<<(f128MantBits-64) - 1
)

var (
	two128     = new(big.Int).Lsh(big.NewInt(1), 128)
	maxUint128 = new(big.Int).Sub(two128, big.NewInt(1))
	maxInt128  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

func halves(b []byte) (lo, hi uint64) {
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16])
}

// Uint128 reads a little-endian unsigned 128-bit integer from b[0:16].
func Uint128(b []byte) *big.Int {
	lo, hi := halves(b)
	v := new(big.Int).SetUint64(hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(lo))
}

// Int128 reads a little-endian two's complement 128-bit integer from b[0:16].
func Int128(b []byte) *big.Int {
	v := Uint128(b)
	if b[15]&0x80 != 0 {
		v.Sub(v, two128)
	}
	return v
}

// bigToFloat64 rounds v to the nearest float64.
func bigToFloat64(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// Float128 reads a little-endian IEEE 754 binary128 value from b[0:16] and
// rounds it to the nearest float64. Values beyond the float64 range become
// infinities and tiny values flush toward zero.
func Float128(b []byte) float64 {
	lo, hi := halves(b)
	neg := hi>>63 != 0
	exp := int(hi>>(f128MantBits-64)) & f128ExpMask
	mantHi := hi & f128HiMant

	switch {
	case exp == f128ExpMask:
		if mantHi == 0 && lo == 0 {
			if neg {
				return math.Inf(-1)
			}
			return math.Inf(1)
		}
		return math.NaN()
	case exp == 0 && mantHi == 0 && lo == 0:
		if neg {
			return math.Copysign(0, -1)
		}
		return 0
	}

	m := new(big.Int).SetUint64(mantHi)
	m.Lsh(m, 64)
	m.Or(m, new(big.Int).SetUint64(lo))
	e := 1 - f128Bias - f128MantBits
	if exp != 0 {
		m.SetBit(m, f128MantBits, 1)
		e = exp - f128Bias - f128MantBits
	}
	f := new(big.Float).SetInt(m)
	f.SetMantExp(f, e)
	if neg {
		f.Neg(f)
	}
	v, _ := f.Float64()
	return v
}

// PutFloat128 writes v as a little-endian binary128 into b[0:16]. Widening a
// float64 is exact.
func PutFloat128(b []byte, v float64) {
	var hi, lo uint64
	if math.Signbit(v) {
		hi = 1 << 63
	}
	a := math.Abs(v)
	switch {
	case math.IsNaN(v):
		hi = f128ExpMask<<(f128MantBits-64) | 1<<(f128MantBits-64-1)
	case math.IsInf(a, 1):
		hi |= f128ExpMask << (f128MantBits - 64)
	case a == 0:
	default:
		frac, e := math.Frexp(a)
		mant := uint64((2*frac - 1) * (1 << 52))
		hi |= uint64(e-1+f128Bias)<<(f128MantBits-64) | mant>>4
		lo = mant << 60
	}
	binary.LittleEndian.PutUint64(b[0:8], lo)
	binary.LittleEndian.PutUint64(b[8:16], hi)
}

// putInt128 truncates v toward zero, saturates it to the signed or unsigned
// 128-bit range and writes it little-endian into b[0:16].
func putInt128(b []byte, v float64, signed bool) {
	x := new(big.Int)
	switch {
	case math.IsNaN(v):
	case math.IsInf(v, 1):
		x.Set(maxUint128)
	case math.IsInf(v, -1):
		x.Set(minInt128)
	default:
		new(big.Float).SetFloat64(v).Int(x)
	}

	lower, upper := big.NewInt(0), maxUint128
	if signed {
		lower, upper = minInt128, maxInt128
	}
	if x.Cmp(lower) < 0 {
		x.Set(lower)
	}
	if x.Cmp(upper) > 0 {
		x.Set(upper)
	}
	if x.Sign() < 0 {
		x.Add(x, two128)
	}

	lo := new(big.Int).And(x, new(big.Int).SetUint64(math.MaxUint64)).Uint64()
	hi := new(big.Int).Rsh(x, 64).Uint64()
	binary.LittleEndian.PutUint64(b[0:8], lo)
	binary.LittleEndian.PutUint64(b[8:16], hi)
}
