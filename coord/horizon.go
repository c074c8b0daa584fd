package coord

import (
	"math"
	"time"
)

// equhor converts between hour-angle/declination and azimuth/altitude.
// Phi is the observer's latitude.
// Arguments are in radians.
// Algorithm from https://metacpan.org/dist/Astro-Montenbruck/source/lib/Astro/Montenbruck/CoCo.pm
func equhorRad(x, y, phi float64) (float64, float64) {
	sx, sy, sphi := math.Sin(x), math.Sin(y), math.Sin(phi)
	cx, cy, cphi := math.Cos(x), math.Cos(y), math.Cos(phi)

	// Rounding can push the inverse-trig arguments a hair past ±1.
	sq := clamp1((sy * sphi) + (cy * cphi * cx))
	q := math.Asin(sq)

	cp := clamp1((sy - (sphi * sq)) / (cphi * math.Cos(q)))
	p := math.Acos(cp)
	if sx > 0 {
		p = 2*math.Pi - p
	}
	return p, q
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

// Horizontal converts an equatorial position to azimuth and altitude in
// degrees. lst is the local sidereal time in hours, latitude in degrees.
func Horizontal(ra RA, dec Dec, lst, latitude float64) (azimuth, altitude float64) {
	// Hour angle in degrees, west positive.
	h := (lst - ra.Hours()) * 15
	p, q := equhorRad(deg2rad(h), deg2rad(dec.Degrees()), deg2rad(latitude))
	return rad2deg(p), rad2deg(q)
}

// j2000 is the sidereal time reference epoch.
var j2000 = time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)

// LocalSidereal returns the local sidereal time in hours [0,24) for an
// east-positive longitude in degrees. Good to a few seconds, which is
// plenty for slew-limit checks.
func LocalSidereal(t time.Time, longitude float64) float64 {
	d := t.Sub(j2000).Hours() / 24
	gmst := 18.697374558 + 24.06570982441908*d
	lst := math.Mod(gmst+longitude/15, 24)
	if lst < 0 {
		lst += 24
	}
	return lst
}
