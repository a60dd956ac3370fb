package ports

import "math/big"

// Amount is a non-negative decimal quantity expressed in a currency's
// minimal unit (e.g. the smallest fractional denomination), following the
// teacher's convention of moving value around as *big.Int rather than a
// floating point type. A nil *big.Int is treated as zero.
type Amount struct {
	minimalUnits *big.Int
}

// Zero returns the zero Amount.
func Zero() Amount { return Amount{minimalUnits: big.NewInt(0)} }

// NewAmount constructs an Amount from a count of minimal units. Negative
// inputs are rejected by returning the zero Amount; callers that must
// distinguish the error case should validate with IsValid before
// constructing.
func NewAmount(minimalUnits int64) Amount {
	if minimalUnits < 0 {
		return Zero()
	}
	return Amount{minimalUnits: big.NewInt(minimalUnits)}
}

// NewAmountFromBigInt wraps an existing *big.Int, cloning it so the caller
// cannot mutate the Amount afterwards.
func NewAmountFromBigInt(v *big.Int) Amount {
	if v == nil {
		return Zero()
	}
	return Amount{minimalUnits: new(big.Int).Set(v)}
}

// BigInt returns the underlying minimal-unit value as a *big.Int copy.
func (a Amount) BigInt() *big.Int {
	if a.minimalUnits == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.minimalUnits)
}

// IsValid reports whether the amount is non-negative.
func (a Amount) IsValid() bool {
	return a.minimalUnits == nil || a.minimalUnits.Sign() >= 0
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.minimalUnits == nil || a.minimalUnits.Sign() == 0
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{minimalUnits: new(big.Int).Add(a.BigInt(), b.BigInt())}
}

// Sub returns a - b. The result may be negative; callers that require
// non-negative results must check IsValid.
func (a Amount) Sub(b Amount) Amount {
	return Amount{minimalUnits: new(big.Int).Sub(a.BigInt(), b.BigInt())}
}

// Cmp compares a to b: -1, 0, or 1.
func (a Amount) Cmp(b Amount) int {
	return a.BigInt().Cmp(b.BigInt())
}

// MulBasisPoints returns a * bps / 10_000, truncating toward zero.
func (a Amount) MulBasisPoints(bps uint32) Amount {
	product := new(big.Int).Mul(a.BigInt(), big.NewInt(int64(bps)))
	product.Quo(product, big.NewInt(10_000))
	return Amount{minimalUnits: product}
}

// String renders the amount in minimal units, suitable for logs and event
// attributes.
func (a Amount) String() string {
	return a.BigInt().String()
}
