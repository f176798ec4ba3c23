package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoney_AddSubRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{"whole krw", "50000000", "1234567"},
		{"negative pnl", "-325000", "1000000"},
		{"fractional btc", "0.12345678", "0.00000001"},
		{"zero", "0", "987654"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := FromString(tt.a, KRW)
			if err != nil {
				t.Fatalf("FromString(%s): %v", tt.a, err)
			}
			b, _ := FromString(tt.b, KRW)

			if got := a.Add(b).Sub(b); !got.Equal(a) {
				t.Errorf("Expected (a+b)-b == a, got %s != %s", got, a)
			}
			if got := a.Sub(a); !got.Equal(Zero(KRW)) {
				t.Errorf("Expected a-a to be zero, got %s", got)
			}
		})
	}
}

func TestMoney_CurrencyMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic on currency mismatch, got none")
		}
	}()

	krw := FromInt(1000, KRW)
	btc := FromInt(1, BTC)
	_ = krw.Add(btc)
}

func TestMoney_Round(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency Currency
		expected string
	}{
		{"krw drops fraction", "1234.6", KRW, "1235 KRW"},
		{"krw half up", "1234.5", KRW, "1235 KRW"},
		{"btc eight digits", "0.123456789", BTC, "0.12345679 BTC"},
		{"usdt two digits", "10.005", USDT, "10.01 USDT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := FromString(tt.amount, tt.currency)
			if got := m.Round().String(); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestMoney_PctOf(t *testing.T) {
	pnl := FromInt(-50000, KRW)
	base := FromInt(1000000, KRW)

	got := pnl.PctOf(base)
	if got.Points().String() != "-5" {
		t.Errorf("Expected -5 points, got %s", got.Points())
	}
}

func TestPercentage_PointsRoundTrip(t *testing.T) {
	for _, points := range []int64{-100, -5, 0, 1, 7, 42, 100} {
		p := PctFromPoints(points)
		if !p.Points().Equal(decimal.NewFromInt(points)) {
			t.Errorf("Expected Points() == %d, got %s", points, p.Points())
		}
	}
}

func TestPercentage_BasisPoints(t *testing.T) {
	p := PctFromFloat(0.05)
	if p.BasisPoints().String() != "500" {
		t.Errorf("Expected 500 bps, got %s", p.BasisPoints())
	}
}

func TestPercentage_Of(t *testing.T) {
	p := PctFromFloat(0.0005)
	amount := FromInt(1000000, KRW)

	fee := p.Of(amount)
	if fee.Amount().String() != "500" {
		t.Errorf("Expected fee 500, got %s", fee.Amount())
	}
}

func TestRatio_Bounds(t *testing.T) {
	tests := []struct {
		value   float64
		wantErr bool
	}{
		{0, false},
		{0.5, false},
		{1, false},
		{-0.01, true},
		{1.01, true},
	}

	for _, tt := range tests {
		_, err := RatioFromFloat(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("RatioFromFloat(%v): expected error=%v, got %v", tt.value, tt.wantErr, err)
		}
	}
}

func TestRatio_Complement(t *testing.T) {
	half := MustRatio(0.5)
	if got := half.Complement().Value().String(); got != "0.5" {
		t.Errorf("Expected complement 0.5, got %s", got)
	}

	full := MustRatio(1.0)
	if !full.Complement().IsZero() {
		t.Errorf("Expected complement of 1 to be zero, got %s", full.Complement())
	}
}
