package coord

import (
	"math"
	"testing"
	"time"
)

func TestHorizontal(t *testing.T) {
	for _, test := range []struct {
		name     string
		ra       float64 // decimal hours
		dec      float64 // decimal degrees
		lst      float64 // hours
		latitude float64
		wantAz   float64
		wantAlt  float64
	}{
		// On the meridian at the equator of the sky, mid-northern site.
		{"transit", 12, 0, 12, 45, 180, 45},
		// The celestial pole sits at the site latitude, due north.
		{"pole", 3, 90, 20, 45, 0, 45},
		// Rising due east on the celestial equator, equatorial site.
		{"rising", 18, 0, 12, 0, 90, 0},
		// Setting due west.
		{"setting", 6, 0, 12, 0, 270, 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			az, alt := Horizontal(RAFromHours(test.ra), DecFromDegrees(test.dec), test.lst, test.latitude)
			if math.Abs(az-test.wantAz) > 1e-6 || math.Abs(alt-test.wantAlt) > 1e-6 {
				t.Errorf("Horizontal() = (%v, %v), want (%v, %v)", az, alt, test.wantAz, test.wantAlt)
			}
		})
	}
}

func TestLocalSidereal(t *testing.T) {
	// At the reference epoch GMST is 18.697374558 hours.
	if got := LocalSidereal(j2000, 0); math.Abs(got-18.697374558) > 1e-6 {
		t.Errorf("LocalSidereal(j2000, 0) = %v", got)
	}
	// 15 degrees of east longitude adds one sidereal hour.
	base := LocalSidereal(j2000, 0)
	east := LocalSidereal(j2000, 15)
	if diff := math.Mod(east-base+24, 24); math.Abs(diff-1) > 1e-9 {
		t.Errorf("longitude offset: got %v hours, want 1", diff)
	}
	// One day later the clock has advanced by roughly 24h04m.
	next := LocalSidereal(j2000.Add(24*time.Hour), 0)
	if diff := math.Mod(next-base+24, 24); math.Abs(diff-0.0657098) > 1e-3 {
		t.Errorf("daily advance: got %v hours", diff)
	}
}
