package catalog

import (
	"fmt"

	"github.com/pebbe/novas"
	"github.com/w1xm/starbook_interface/coord"
)

// site wraps the NOVAS observer definition together with the bodies the
// ephemeris can position.
type site struct {
	place  *novas.Place
	bodies map[string]*novas.Body
}

// SetSite fixes the observing location used for topocentric
// solar-system positions. Height is in meters.
func (c *Catalog) SetSite(latitude, longitude, height float64) {
	c.site = &site{
		// Standard temperature and pressure; refraction is disabled in
		// Topo calls anyway.
		place: novas.NewPlace(latitude, longitude, height, 15, 1010),
		bodies: map[string]*novas.Body{
			"sun":     novas.Sun(),
			"moon":    novas.Moon(),
			"mercury": novas.Mercury(),
			"venus":   novas.Venus(),
			"mars":    novas.Mars(),
			"jupiter": novas.Jupiter(),
			"saturn":  novas.Saturn(),
			"uranus":  novas.Uranus(),
			"neptune": novas.Neptune(),
			"pluto":   novas.Pluto(),
		},
	}
}

func (c *Catalog) resolveBody(name string) (coord.RA, coord.Dec, error) {
	if c.site == nil {
		return coord.RA{}, coord.Dec{}, fmt.Errorf("%w: %q (no observing site for solar-system bodies)", ErrObjectNotFound, name)
	}
	body, ok := c.site.bodies[normalize(name)]
	if !ok {
		return coord.RA{}, coord.Dec{}, fmt.Errorf("%w: %q", ErrObjectNotFound, name)
	}
	data := body.Topo(novas.Now(), c.site.place, novas.REFR_NONE)
	return coord.RAFromHours(data.Ra), coord.DecFromDegrees(data.Dec), nil
}
