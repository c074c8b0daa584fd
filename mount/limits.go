package mount

import (
	"context"
	"log"
	"time"

	"github.com/w1xm/starbook_interface/coord"
)

// ReplyBelowHorizon mirrors the reply the device itself gives for an
// unreachable target, so callers handle both refusals the same way.
const ReplyBelowHorizon = "ERROR:BELOW HORIZON"

// AltitudeLimit wraps a Mount and refuses goto targets that would be
// below a minimum altitude at the site, without issuing the command.
type AltitudeLimit struct {
	Mount
	latitude  float64
	longitude float64
	min       float64
	now       func() time.Time
}

func NewAltitudeLimit(m Mount, latitude, longitude, min float64) *AltitudeLimit {
	return &AltitudeLimit{
		Mount:     m,
		latitude:  latitude,
		longitude: longitude,
		min:       min,
		now:       time.Now,
	}
}

func (l *AltitudeLimit) Goto(ctx context.Context, ra coord.RA, dec coord.Dec) (string, error) {
	lst := coord.LocalSidereal(l.now().UTC(), l.longitude)
	az, alt := coord.Horizontal(ra, dec, lst, l.latitude)
	if alt < l.min {
		log.Printf("refusing goto %v %v: altitude %.1f° (az %.1f°) below limit %.1f°", ra, dec, alt, az, l.min)
		return ReplyBelowHorizon, nil
	}
	return l.Mount.Goto(ctx, ra, dec)
}
