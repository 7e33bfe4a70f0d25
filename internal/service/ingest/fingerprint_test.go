package ingest

import (
	"testing"

	"github.com/hdtickets/scout/internal/domain"
)

func TestFingerprintNormalization(t *testing.T) {
	a := Fingerprint(domain.PlatformStubHub, "Manchester United vs Arsenal", "Old Trafford", "Sir Alex Ferguson Stand")
	b := Fingerprint(domain.PlatformStubHub, "  manchester   UNITED vs arsenal ", "old  trafford", "sir alex ferguson stand")

	if a != b {
		t.Fatal("case and whitespace variants must hash identically")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintDiscriminates(t *testing.T) {
	base := Fingerprint(domain.PlatformStubHub, "Manchester United vs Arsenal", "Old Trafford", "N3404")

	variants := []string{
		Fingerprint(domain.PlatformViagogo, "Manchester United vs Arsenal", "Old Trafford", "N3404"),
		Fingerprint(domain.PlatformStubHub, "Manchester United vs Chelsea", "Old Trafford", "N3404"),
		Fingerprint(domain.PlatformStubHub, "Manchester United vs Arsenal", "Wembley", "N3404"),
		Fingerprint(domain.PlatformStubHub, "Manchester United vs Arsenal", "Old Trafford", "N3405"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d must produce a different fingerprint", i)
		}
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// the separator must keep adjacent fields from bleeding into each other
	a := Fingerprint(domain.PlatformStubHub, "derby a", "b stand", "")
	b := Fingerprint(domain.PlatformStubHub, "derby", "a b stand", "")

	if a == b {
		t.Fatal("field boundaries must be preserved")
	}
}
