package bigamount

import "testing"

func TestFromDecimalString(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1000000000", want: "1000000000"},
		{in: "  42  ", want: "42"},
		{in: "", want: "0"},
		{in: "0", want: "0"},
		{in: "1.5", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, c := range cases {
		got, err := FromDecimalString(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("FromDecimalString(%q): expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("FromDecimalString(%q): unexpected error: %v", c.in, err)
		}
		if got.ToDecimalString() != c.want {
			t.Errorf("FromDecimalString(%q) = %q, want %q", c.in, got.ToDecimalString(), c.want)
		}
	}
}

func TestSubSaturating(t *testing.T) {
	a := MustFromDecimalString("100")
	b := MustFromDecimalString("150")
	got := a.SubSaturating(b)
	if !got.IsZero() {
		t.Errorf("SubSaturating underflow should floor at zero, got %s", got)
	}
}

func TestMulFracPPM(t *testing.T) {
	amt := MustFromDecimalString("1000")
	// sellFraction >= 0.999 -> 995000 ppm, matches the 99.5% dust-avoidance rule.
	got := amt.MulFracPPM(995000)
	if got.ToDecimalString() != "995" {
		t.Errorf("MulFracPPM(995000) = %s, want 995", got)
	}
	if amt.MulFracPPM(0).ToDecimalString() != "0" {
		t.Error("MulFracPPM(0) should be zero")
	}
	if amt.MulFracPPM(1_000_000).ToDecimalString() != "1000" {
		t.Error("MulFracPPM(1_000_000) should be identity")
	}
}

func TestMulDivRoundDown(t *testing.T) {
	// Scenario B from the spec: allocated_cost = 900 * 300 / 1000 = 270.
	cost := MustFromDecimalString("900")
	got := cost.MulDivRoundDown(300, 1000)
	if got.ToDecimalString() != "270" {
		t.Errorf("MulDivRoundDown = %s, want 270", got)
	}
}

func TestSignedAllowsNegative(t *testing.T) {
	s := ZeroSigned()
	s = s.Sub(MustFromDecimalString("50"))
	if !s.IsNegative() {
		t.Error("expected negative signed amount")
	}
	if s.ToDecimalString() != "-50" {
		t.Errorf("got %s, want -50", s)
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := MustFromDecimalString("123456789012345")
	data, err := a.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var b Amount
	if err := b.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if a.Cmp(b) != 0 {
		t.Errorf("round trip mismatch: %s != %s", a, b)
	}
}
