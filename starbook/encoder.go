package starbook

import (
	"context"
	"log"
	"math"
	"time"
)

// EncoderStatus is the meridian-flip hazard analysis derived from the
// raw axis encoder counts. The RA axis reads zero on the meridian and
// round/4 a quarter revolution away; DeltaRA is the normalized distance
// left before the mount must flip (negative once past the meridian).
// The DEC axis reads round at the pole; DeltaDec is the normalized
// distance from it.
type EncoderStatus struct {
	X, Y  int
	Round int

	DeltaRA  float64
	DeltaDec float64

	// RAWarning and DecWarning are the early advisories; Hazard is the
	// tighter condition that triggers an automatic revert.
	RAWarning bool
	// MeridianMinutes is how far past the meridian the RA axis sits,
	// in minutes of hour angle. Only set with RAWarning.
	MeridianMinutes float64
	DecWarning      bool
	// DecDegrees is the pole distance in degrees. Only set with
	// DecWarning.
	DecDegrees float64

	// Rate is the RA drive rate as a fraction of sidereal, valid only
	// once the measurement window is long enough.
	Rate      float64
	RateValid bool

	Hazard bool
}

const (
	// The rate estimate needs at least rateWindowMin of samples and is
	// re-anchored after rateWindowMax so mechanical drift cannot bias
	// a long session.
	rateWindowMin = 10 * time.Second
	rateWindowMax = 60 * time.Second

	siderealDay = 86400.0 // encoder counts per day is round
)

// refreshEncodersLocked reads the axis encoders and rebuilds the hazard
// analysis. In simulate mode the RA count advances at exactly sidereal
// rate and the DEC axis sits a quarter revolution from the pole.
func (s *Session) refreshEncodersLocked(ctx context.Context) error {
	var x, y int
	if s.simulate {
		elapsed := s.now().Sub(s.simStart).Seconds()
		x = int(elapsed * float64(s.status.Round) / siderealDay)
		y = s.status.Round / 2
	} else {
		if _, err := s.t.SendScan(ctx, "getxy", "X=%d&Y=%d", &x, &y); err != nil {
			return err
		}
	}
	s.status.Encoders = s.analyzeEncodersLocked(x, y)
	return nil
}

func (s *Session) analyzeEncodersLocked(x, y int) EncoderStatus {
	round := s.status.Round
	es := EncoderStatus{X: x, Y: y, Round: round}
	if round == 0 {
		return es
	}
	fr := float64(round)

	es.DeltaRA = (fr/4 - math.Abs(float64(x))) / fr
	if es.DeltaRA*100 <= -0.2 {
		es.RAWarning = true
		es.MeridianMinutes = math.Abs(es.DeltaRA) * 1800
		log.Printf("close to revert on RA axis: %.1f minutes past meridian", es.MeridianMinutes)
	}

	es.DeltaDec = math.Abs(math.Abs(float64(y))-fr) / fr
	if es.DeltaDec < 0.10 {
		es.DecWarning = true
		es.DecDegrees = es.DeltaDec * 360
		log.Printf("close to revert on DEC axis: %.1f degrees from pole", es.DecDegrees)
	}

	es.Hazard = es.DeltaRA*100 <= -0.3 || es.DeltaDec < 0.01

	// The sidereal-rate window is only meaningful while the mount
	// should be tracking.
	now := s.now()
	eligible := s.status.State == StateScope || s.status.State == StateUser
	if !eligible || (s.haveAnchor && now.Sub(s.anchorTime) >= rateWindowMax) {
		s.haveAnchor = false
	}
	switch {
	case !eligible:
	case !s.haveAnchor:
		s.haveAnchor = true
		s.anchorX = x
		s.anchorTime = now
	default:
		elapsed := now.Sub(s.anchorTime).Seconds()
		if elapsed >= rateWindowMin.Seconds() {
			es.Rate = math.Abs(float64(x-s.anchorX)) / elapsed / (fr / siderealDay)
			es.RateValid = true
			if es.Rate < 0.5 && s.status.State == StateScope {
				log.Printf("slow RA move: %.2f of sidereal", es.Rate)
				if es.DeltaRA < 0 {
					// Barely moving while already past the meridian:
					// the drive has most likely stalled against the
					// flip limit.
					es.Hazard = true
				}
			}
		}
	}
	return es
}
