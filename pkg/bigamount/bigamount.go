// Package bigamount implements arbitrary-precision integer arithmetic for
// on-chain native and token amounts ("lamports" and raw token units).
//
// Every monetary quantity in the ledger and intent pipeline is represented
// as an Amount rather than a float64: proportional sells, buy sizing and
// sell-fraction math must be lossless and deterministic, which rules out
// floating point entirely. Parsing is strict base-10 with no exponent and no
// hex prefix: a value containing a decimal point or any non-digit is
// rejected rather than rounded or reinterpreted.
package bigamount

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidAmount is returned when a decimal string does not represent a
// non-negative base-10 integer.
var ErrInvalidAmount = fmt.Errorf("bigamount: invalid amount")

const ppmDenominator = 1_000_000

// Amount is a non-negative arbitrary-precision integer quantity. The zero
// value is zero lamports/raw-units.
type Amount struct {
	v *big.Int
}

// Zero returns the zero Amount.
func Zero() Amount {
	return Amount{v: new(big.Int)}
}

// FromInt64 builds an Amount from a non-negative int64, useful in tests.
func FromInt64(n int64) (Amount, error) {
	if n < 0 {
		return Amount{}, fmt.Errorf("%w: %d is negative", ErrInvalidAmount, n)
	}
	return Amount{v: big.NewInt(n)}, nil
}

// FromDecimalString parses a canonical non-negative base-10 integer string.
// Leading/trailing whitespace is trimmed; an empty string is treated as zero.
// Any fractional point, sign, exponent or non-digit character fails with
// ErrInvalidAmount, matching the contract in spec §4.1: "parsing a
// non-integer decimal fails with InvalidAmount".
func FromDecimalString(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero(), nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{v: v}, nil
}

// MustFromDecimalString is FromDecimalString but panics on error. Intended
// for package-level constants and tests, never for untrusted input.
func MustFromDecimalString(s string) Amount {
	a, err := FromDecimalString(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) bigOrZero() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// ToDecimalString renders the amount as a canonical base-10 integer string.
func (a Amount) ToDecimalString() string {
	return a.bigOrZero().String()
}

// String implements fmt.Stringer as ToDecimalString.
func (a Amount) String() string {
	return a.ToDecimalString()
}

// Int returns a defensive copy of the underlying big.Int.
func (a Amount) Int() *big.Int {
	return new(big.Int).Set(a.bigOrZero())
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.bigOrZero().Sign() == 0
}

// Cmp compares two amounts the way big.Int.Cmp does.
func (a Amount) Cmp(b Amount) int {
	return a.bigOrZero().Cmp(b.bigOrZero())
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.bigOrZero(), b.bigOrZero())}
}

// SubSaturating returns max(a-b, 0). This is the only subtraction the
// ledger performs on non-negative balances: cash and position sizes never
// go negative even when a reported fill spends more than was held.
func (a Amount) SubSaturating(b Amount) Amount {
	r := new(big.Int).Sub(a.bigOrZero(), b.bigOrZero())
	if r.Sign() < 0 {
		return Zero()
	}
	return Amount{v: r}
}

// Min returns the smaller of a and b.
func (a Amount) Min(b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// MulFracPPM computes floor(amount * ppm / 1_000_000) using arbitrary
// precision integer math, rounding toward zero. ppm is clamped to
// [0, 1_000_000] defensively; out-of-range callers are a programming error
// but must never panic or overflow a float.
func (a Amount) MulFracPPM(ppm int64) Amount {
	if ppm < 0 {
		ppm = 0
	}
	if ppm > ppmDenominator {
		ppm = ppmDenominator
	}
	num := new(big.Int).Mul(a.bigOrZero(), big.NewInt(ppm))
	return Amount{v: num.Quo(num, big.NewInt(ppmDenominator))}
}

// MulDivRoundDown computes floor(a * num / den), the integer division used
// by proportional cost allocation on partial sells (spec §4.4). den must be
// positive; a non-positive den returns zero.
func (a Amount) MulDivRoundDown(num, den int64) Amount {
	if den <= 0 {
		return Zero()
	}
	r := new(big.Int).Mul(a.bigOrZero(), big.NewInt(num))
	return Amount{v: r.Quo(r, big.NewInt(den))}
}

// MulDivAmounts computes floor(a * num / den) where num and den are
// themselves arbitrary-precision Amounts, avoiding any int64 conversion of
// the amounts being allocated (e.g. cost allocation against a raw token
// balance that may exceed 63 bits). den of zero returns zero.
func (a Amount) MulDivAmounts(num, den Amount) Amount {
	if den.IsZero() {
		return Zero()
	}
	r := new(big.Int).Mul(a.bigOrZero(), num.bigOrZero())
	return Amount{v: r.Quo(r, den.bigOrZero())}
}

// MarshalJSON encodes the amount as a JSON string, matching the on-disk
// "string int" convention used throughout the queue and state file formats.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.ToDecimalString())
}

// UnmarshalJSON decodes either a JSON string or a bare JSON number into an
// Amount, so that hand-edited fixtures using numeric literals still parse.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, perr := FromDecimalString(s)
		if perr != nil {
			return perr
		}
		*a = v
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	v, perr := FromDecimalString(n.String())
	if perr != nil {
		return perr
	}
	*a = v
	return nil
}

// Signed is an arbitrary-precision integer that may be negative, used for
// realized PnL accumulation where losses are allowed (spec §4.1's "separate
// signed wrapper").
type Signed struct {
	v *big.Int
}

// ZeroSigned returns a signed zero.
func ZeroSigned() Signed {
	return Signed{v: new(big.Int)}
}

// SignedFromDecimalString parses an optionally-signed base-10 integer.
func SignedFromDecimalString(s string) (Signed, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroSigned(), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Signed{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Signed{v: v}, nil
}

func (s Signed) bigOrZero() *big.Int {
	if s.v == nil {
		return new(big.Int)
	}
	return s.v
}

// ToDecimalString renders the signed amount as a canonical integer string.
func (s Signed) ToDecimalString() string { return s.bigOrZero().String() }

func (s Signed) String() string { return s.ToDecimalString() }

// Add returns s+delta, delta expressed as an unsigned Amount being credited.
func (s Signed) Add(delta Amount) Signed {
	return Signed{v: new(big.Int).Add(s.bigOrZero(), delta.bigOrZero())}
}

// AddSigned returns s+o.
func (s Signed) AddSigned(o Signed) Signed {
	return Signed{v: new(big.Int).Add(s.bigOrZero(), o.bigOrZero())}
}

// Sub returns s-delta, delta expressed as an unsigned Amount being debited.
func (s Signed) Sub(delta Amount) Signed {
	return Signed{v: new(big.Int).Sub(s.bigOrZero(), delta.bigOrZero())}
}

// IsNegative reports whether the accumulated value is below zero.
func (s Signed) IsNegative() bool { return s.bigOrZero().Sign() < 0 }

// SignedDiff returns a-b as a Signed, allowing the result to go negative
// (e.g. realized PnL = proceeds - allocated cost, which may be a loss).
func SignedDiff(a, b Amount) Signed {
	return Signed{v: new(big.Int).Sub(a.bigOrZero(), b.bigOrZero())}
}

// SignedFromInt64 builds a Signed directly from an int64, used where a
// floating-point USD estimate (e.g. perp PnL) is rounded to whole lamports
// before being folded into the integer ledger.
func SignedFromInt64(n int64) Signed {
	return Signed{v: big.NewInt(n)}
}

// Unsigned returns the absolute value as an Amount, discarding sign.
func (s Signed) Unsigned() Amount { return Amount{v: new(big.Int).Abs(s.bigOrZero())} }

func (s Signed) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToDecimalString())
}

func (s *Signed) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		v, err := SignedFromDecimalString(str)
		if err != nil {
			return err
		}
		*s = v
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
	}
	v, err := SignedFromDecimalString(n.String())
	if err != nil {
		return err
	}
	*s = v
	return nil
}
