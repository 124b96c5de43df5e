package amplitude_test

import (
	"context"
	"testing"
	"time"

	"github.com/tremorstack/seisdetect/internal/amplitude"
)

func TestUnitIsValid(t *testing.T) {
	cases := []struct {
		unit amplitude.Unit
		want bool
	}{
		{amplitude.UnitDisplacement, true},
		{amplitude.UnitVelocity, true},
		{amplitude.UnitAcceleration, true},
		{amplitude.Unit("furlongs"), false},
		{amplitude.Unit(""), false},
	}
	for _, c := range cases {
		if got := c.unit.IsValid(); got != c.want {
			t.Errorf("Unit(%q).IsValid() = %v, want %v", c.unit, got, c.want)
		}
	}
}

func TestMeasurementValidateRejectsUnknownUnit(t *testing.T) {
	m := amplitude.Measurement{Value: 1.2e-6, Unit: amplitude.Unit("parsecs")}
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() = nil, want an error for an unrecognized unit")
	}
}

func TestMeasurementValidateAcceptsKnownUnit(t *testing.T) {
	m := amplitude.Measurement{Value: 3.4e-5, Unit: amplitude.UnitVelocity}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestNoopEstimatorReturnsNothing(t *testing.T) {
	var e amplitude.Estimator = amplitude.NoopEstimator{}
	got, err := e.Estimate(context.Background(), amplitude.DetectionContext{OriginTime: time.Now()}, nil)
	if err != nil {
		t.Fatalf("Estimate() = %v, want nil error", err)
	}
	if len(got) != 0 {
		t.Fatalf("Estimate() = %d measurements, want 0", len(got))
	}
}
