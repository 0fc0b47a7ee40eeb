package fsm

import (
	"math/rand"
	"testing"
)

func TestParseSquawk(t *testing.T) {
	sq, err := ParseSquawk("1200")
	if err != nil {
		t.Fatalf("ParseSquawk failed: %v", err)
	}
	if sq != 0o1200 {
		t.Errorf("expected 0o1200, got %04o", int(sq))
	}
	if sq.String() != "1200" {
		t.Errorf("String() = %q", sq.String())
	}

	for _, bad := range []string{"", "12", "12345", "1280", "abcd"} {
		if _, err := ParseSquawk(bad); err == nil {
			t.Errorf("ParseSquawk(%q) should fail", bad)
		}
	}
}

func TestRandomSquawk_NeverReserved(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		sq := randomSquawk(r)
		if sq.IsReserved() {
			t.Fatalf("drew reserved code %s", sq)
		}
		if sq < 0 || sq > 0o7777 {
			t.Fatalf("drew out-of-range code %04o", int(sq))
		}
	}
}

func TestInitialSquawk(t *testing.T) {
	def, err := ParseDefinition([]byte(fixtureCatalog))
	if err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewSource(7))

	// "main" pins 1200.
	g, err := BuildModeGraph(def, "main")
	if err != nil {
		t.Fatal(err)
	}
	sq, err := g.InitialSquawk(r)
	if err != nil {
		t.Fatal(err)
	}
	if sq != 0o1200 {
		t.Errorf("fixed policy: expected 1200, got %s", sq)
	}

	// "short" has no squawk block and falls back to the VFR default.
	g, err = BuildModeGraph(def, "short")
	if err != nil {
		t.Fatal(err)
	}
	sq, err = g.InitialSquawk(r)
	if err != nil {
		t.Fatal(err)
	}
	if sq != 0o1200 {
		t.Errorf("default policy: expected 1200, got %s", sq)
	}
}

func TestInitialSquawk_Random(t *testing.T) {
	def, err := LoadDefinition("")
	if err != nil {
		t.Fatal(err)
	}
	g, err := BuildModeGraph(def, "VFR_CROSS_COUNTRY")
	if err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		sq, err := g.InitialSquawk(r)
		if err != nil {
			t.Fatal(err)
		}
		if sq.IsReserved() {
			t.Fatalf("random policy drew reserved code %s", sq)
		}
	}
}
