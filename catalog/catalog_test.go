package catalog

import (
	"errors"
	"math"
	"testing"
)

func TestFind(t *testing.T) {
	c := New()
	for _, tt := range []struct {
		query string
		want  string
	}{
		{"Sirius", "Sirius"},
		{"sirius", "Sirius"},
		{"  VEGA ", "Vega"},
		{"M31", "M31"},
		{"M 31", "M31"},
		{"Andromeda Galaxy", "M31"},
		{"pleiades", "M45"},
		{"north star", "Polaris"},
		{"alpha centauri", "Rigil Kentaurus"},
	} {
		obj, err := c.Find(tt.query)
		if err != nil {
			t.Errorf("Find(%q) returned %v", tt.query, err)
			continue
		}
		if obj.Name != tt.want {
			t.Errorf("Find(%q) = %q, want %q", tt.query, obj.Name, tt.want)
		}
	}
}

func TestFindUnknown(t *testing.T) {
	c := New()
	if _, err := c.Find("phantom nebula"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Find(phantom nebula) error = %v, want ErrObjectNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	c := New()
	ra, dec, err := c.Resolve("vega")
	if err != nil {
		t.Fatalf("Resolve(vega) returned %v", err)
	}
	if got := ra.Hours(); math.Abs(got-18.6156) > 1e-4 {
		t.Errorf("Resolve(vega) RA = %v hours, want 18.6156", got)
	}
	if got := dec.Degrees(); math.Abs(got-38.7837) > 1e-4 {
		t.Errorf("Resolve(vega) DEC = %v degrees, want 38.7837", got)
	}
}

func TestResolveNegativeDec(t *testing.T) {
	c := New()
	_, dec, err := c.Resolve("sirius")
	if err != nil {
		t.Fatalf("Resolve(sirius) returned %v", err)
	}
	if got := dec.Degrees(); got >= 0 {
		t.Errorf("Resolve(sirius) DEC = %v, want negative", got)
	}
	if dec.Wire() == "" || dec.Wire()[0] != '-' {
		t.Errorf("Resolve(sirius) wire DEC = %q, want leading minus", dec.Wire())
	}
}

func TestResolveBodyNeedsSite(t *testing.T) {
	c := New()
	// Without a site the ephemeris cannot run, so planets report as
	// not found.
	if _, _, err := c.Resolve("jupiter"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Resolve(jupiter) without site = %v, want ErrObjectNotFound", err)
	}
}

func TestObjectsCopy(t *testing.T) {
	c := New()
	list := c.Objects()
	if len(list) == 0 {
		t.Fatal("Objects returned an empty table")
	}
	list[0].Name = "scribbled"
	if got, err := c.Find("sirius"); err != nil || got.Name != "Sirius" {
		t.Errorf("catalog table aliased by Objects: %v %v", got, err)
	}
}
