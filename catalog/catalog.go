// Package catalog resolves object names to equatorial coordinates. A
// built-in table covers the bright stars and the popular Messier
// objects; solar-system bodies are computed from NOVAS ephemerides once
// an observing site is set.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/w1xm/starbook_interface/coord"
)

// ErrObjectNotFound reports a name no table entry or ephemeris body
// matches.
var ErrObjectNotFound = errors.New("object not found")

// Object is one fixed catalog entry. RA is in decimal hours, Dec in
// decimal degrees, both J2000; Distance is light years, zero when
// unknown.
type Object struct {
	Name      string
	RA        float64
	Dec       float64
	Magnitude float64
	Type      string
	Distance  float64
}

const (
	TypeStar    = "star"
	TypeGalaxy  = "galaxy"
	TypeNebula  = "nebula"
	TypeCluster = "cluster"
	TypePlanet  = "planet"
)

var objects = []Object{
	{"Sirius", 6.7525, -16.7161, -1.46, TypeStar, 8.6},
	{"Canopus", 6.3992, -52.6957, -0.74, TypeStar, 310},
	{"Rigil Kentaurus", 14.6599, -60.8354, -0.27, TypeStar, 4.37},
	{"Arcturus", 14.2610, 19.1824, -0.05, TypeStar, 36.7},
	{"Vega", 18.6156, 38.7837, 0.03, TypeStar, 25},
	{"Capella", 5.2782, 45.9980, 0.08, TypeStar, 43},
	{"Rigel", 5.2423, -8.2016, 0.13, TypeStar, 860},
	{"Procyon", 7.6550, 5.2250, 0.34, TypeStar, 11.5},
	{"Achernar", 1.6286, -57.2368, 0.46, TypeStar, 139},
	{"Betelgeuse", 5.9195, 7.4071, 0.50, TypeStar, 548},
	{"Hadar", 14.0637, -60.3730, 0.61, TypeStar, 390},
	{"Altair", 19.8464, 8.8683, 0.76, TypeStar, 16.7},
	{"Acrux", 12.4433, -63.0990, 0.76, TypeStar, 320},
	{"Aldebaran", 4.5987, 16.5093, 0.86, TypeStar, 65},
	{"Antares", 16.4901, -26.4320, 0.96, TypeStar, 550},
	{"Spica", 13.4199, -11.1613, 0.97, TypeStar, 250},
	{"Pollux", 7.7553, 28.0262, 1.14, TypeStar, 34},
	{"Fomalhaut", 22.9608, -29.6222, 1.16, TypeStar, 25},
	{"Deneb", 20.6905, 45.2803, 1.25, TypeStar, 2600},
	{"Mimosa", 12.7953, -59.6888, 1.25, TypeStar, 280},
	{"Regulus", 10.1395, 11.9672, 1.39, TypeStar, 79},
	{"Adhara", 6.9771, -28.9721, 1.50, TypeStar, 430},
	{"Castor", 7.5767, 31.8883, 1.58, TypeStar, 51},
	{"Shaula", 17.5601, -37.1038, 1.62, TypeStar, 570},
	{"Polaris", 2.5303, 89.2641, 1.98, TypeStar, 433},
	{"M31", 0.7123, 41.2690, 3.4, TypeGalaxy, 2.5e6},
	{"M33", 1.5639, 30.6602, 5.7, TypeGalaxy, 2.7e6},
	{"M8", 18.0603, -24.3867, 6.0, TypeNebula, 4100},
	{"M13", 16.6949, 36.4613, 5.8, TypeCluster, 22200},
	{"M27", 19.9934, 22.7211, 7.5, TypeNebula, 1360},
	{"M42", 5.5881, -5.3911, 4.0, TypeNebula, 1344},
	{"M45", 3.7833, 24.1167, 1.6, TypeCluster, 444},
	{"M51", 13.4980, 47.1952, 8.4, TypeGalaxy, 2.3e7},
	{"M57", 18.8908, 33.0289, 8.8, TypeNebula, 2300},
	{"M104", 12.6665, -11.6231, 8.0, TypeGalaxy, 2.9e7},
}

var aliases = map[string]string{
	"andromeda":       "m31",
	"andromedagalaxy": "m31",
	"triangulum":      "m33",
	"lagoonnebula":    "m8",
	"herculescluster": "m13",
	"dumbbellnebula":  "m27",
	"orionnebula":     "m42",
	"pleiades":        "m45",
	"sevensisters":    "m45",
	"whirlpoolgalaxy": "m51",
	"ringnebula":      "m57",
	"sombrerogalaxy":  "m104",
	"alphacentauri":   "rigilkentaurus",
	"northstar":       "polaris",
}

// Catalog serves name lookups. The zero value is not usable; call New.
type Catalog struct {
	objects []Object
	index   map[string]int

	site *site
}

func New() *Catalog {
	c := &Catalog{
		objects: objects,
		index:   make(map[string]int, len(objects)),
	}
	for i, o := range c.objects {
		c.index[normalize(o.Name)] = i
	}
	return c
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "")
}

// Find looks a name up in the fixed table.
func (c *Catalog) Find(name string) (Object, error) {
	key := normalize(name)
	if canon, ok := aliases[key]; ok {
		key = canon
	}
	if i, ok := c.index[key]; ok {
		return c.objects[i], nil
	}
	return Object{}, fmt.Errorf("%w: %q", ErrObjectNotFound, name)
}

// Objects returns the fixed table, for listing in UIs.
func (c *Catalog) Objects() []Object {
	return append([]Object(nil), c.objects...)
}

// Resolve maps a name to mount coordinates. Table entries win; anything
// else is tried as a solar-system body, which needs SetSite first.
func (c *Catalog) Resolve(name string) (coord.RA, coord.Dec, error) {
	if obj, err := c.Find(name); err == nil {
		return coord.RAFromHours(obj.RA), coord.DecFromDegrees(obj.Dec), nil
	}
	return c.resolveBody(name)
}
