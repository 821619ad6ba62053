package billing

import (
	"context"
	"math"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestNormalize_Defaults(t *testing.T) {
	r := Settings{}.Normalize()
	if r.PlatformFeePercent != 0 || r.AdminCommissionPercent != 20 || r.MaxWithdrawalPercent != 85 {
		t.Errorf("unexpected defaults: %+v", r)
	}
}

func TestNormalize_Clamp(t *testing.T) {
	r := Settings{
		PlatformFeePercent:     ptr(-3),
		AdminCommissionPercent: ptr(150),
		MaxWithdrawalPercent:   ptr(math.NaN()),
	}.Normalize()

	if r.PlatformFeePercent != 0 {
		t.Errorf("platform fee = %v, want 0", r.PlatformFeePercent)
	}
	if r.AdminCommissionPercent != 100 {
		t.Errorf("admin commission = %v, want 100", r.AdminCommissionPercent)
	}
	if r.MaxWithdrawalPercent != 85 {
		t.Errorf("max withdrawal = %v, want default 85", r.MaxWithdrawalPercent)
	}
}

func TestComputeFees(t *testing.T) {
	tests := []struct {
		name      string
		base, adj int64
		percent   float64
		want      Fees
	}{
		{"ten percent", 5000, 0, 10, Fees{Consultation: 5000, Platform: 500, Total: 5500}},
		{"voice discount", 5000, -1000, 10, Fees{Consultation: 4000, Platform: 400, Total: 4400}},
		{"floored at zero", 500, -1000, 10, Fees{Consultation: 0, Platform: 0, Total: 0}},
		{"rounded", 3333, 0, 7.5, Fees{Consultation: 3333, Platform: 250, Total: 3583}},
		{"no platform fee", 2500, 0, 0, Fees{Consultation: 2500, Platform: 0, Total: 2500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFees(tt.base, tt.adj, tt.percent)
			if got != tt.want {
				t.Errorf("ComputeFees = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStaticProvider(t *testing.T) {
	p := StaticProvider{PlatformFeePercent: 10}
	r, err := p.Rates(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.PlatformFeePercent != 10 {
		t.Errorf("platform fee = %v", r.PlatformFeePercent)
	}
}
