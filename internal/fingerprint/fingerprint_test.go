package fingerprint_test

import (
	"testing"

	"github.com/tremorstack/seisdetect/internal/fingerprint"
)

func TestArrivalCoefficientDeterministic(t *testing.T) {
	a := fingerprint.ArrivalCoefficient("GE.WLF..BHZ", "P", 1000, 0.987654321987)
	b := fingerprint.ArrivalCoefficient("GE.WLF..BHZ", "P", 1000, 0.987654321987)
	if a != b {
		t.Fatal("expected identical inputs to produce identical fingerprints")
	}
}

func TestArrivalCoefficientRoundsDrift(t *testing.T) {
	a := fingerprint.ArrivalCoefficient("GE.WLF..BHZ", "P", 1000, 0.9876543219870001)
	b := fingerprint.ArrivalCoefficient("GE.WLF..BHZ", "P", 1000, 0.9876543219870002)
	if a != b {
		t.Fatal("expected sub-1e-12 drift to round to the same fingerprint")
	}
}

func TestArrivalCoefficientDiffers(t *testing.T) {
	a := fingerprint.ArrivalCoefficient("GE.WLF..BHZ", "P", 1000, 0.9)
	b := fingerprint.ArrivalCoefficient("GE.WLF..BHZ", "S", 1000, 0.9)
	if a == b {
		t.Fatal("expected different phases to produce different fingerprints")
	}
}

func TestProcessingConfigKeyStable(t *testing.T) {
	k1 := fingerprint.ProcessingConfigKey("BW(4,BP,1,10)", 2.0, 50.0, true)
	k2 := fingerprint.ProcessingConfigKey("BW(4,BP,1,10)", 2.0, 50.0, true)
	if k1 != k2 {
		t.Fatal("expected stable cache key for identical config")
	}

	k3 := fingerprint.ProcessingConfigKey("BW(4,BP,1,10)", 2.0, 50.0, false)
	if k1 == k3 {
		t.Fatal("expected demean flag to affect the cache key")
	}
}

func TestNewEventIDUnique(t *testing.T) {
	a := fingerprint.NewEventID()
	b := fingerprint.NewEventID()
	if a == b {
		t.Fatal("expected distinct event IDs")
	}
}
