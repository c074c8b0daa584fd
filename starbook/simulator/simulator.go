// Package simulator implements a fake STAR BOOK controller that speaks
// the real HTTP wire protocol. It backs the -simulator flag and the
// transport-level tests, so everything above the HTTP client can run
// against it unchanged.
package simulator

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/w1xm/starbook_interface/coord"
)

const (
	// maxSlewRA and maxSlewDec bound how far one simulated second of
	// slewing moves each axis.
	maxSlewRA  = 0.4 // hours per second
	maxSlewDec = 1.6 // degrees per second
	// arrive is the remaining distance at which a slew snaps onto the
	// target and the goto flag drops.
	arrive = 0.005

	defaultRound = 8640000
	version      = "2.7 simulator"
)

// Simulator holds the fake mount state. The zero value is not usable;
// call New.
type Simulator struct {
	mu        sync.Mutex
	started   bool
	ra        float64 // hours
	dec       float64 // degrees
	targetRA  float64
	targetDec float64
	gotoFlag  bool
	speed     int
	round     int
	x, y      int
	epoch     time.Time

	now func() time.Time
}

func New() *Simulator {
	s := &Simulator{
		round: defaultRound,
		speed: 5,
		now:   time.Now,
	}
	s.epoch = s.now()
	s.y = s.round * 3 / 4
	return s
}

// Run steps the simulated mount once a second until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Step(1)
		}
	}
}

// Step advances the mount by dt seconds: each axis moves toward the
// target at its slew bound, and the RA encoder advances at sidereal
// rate as if tracking started on the meridian at power-on.
func (s *Simulator) Step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.ra += step(s.targetRA-s.ra, maxSlewRA*dt)
		s.dec += step(s.targetDec-s.dec, maxSlewDec*dt)
		if math.Abs(s.targetRA-s.ra) <= arrive && math.Abs(s.targetDec-s.dec) <= arrive {
			s.ra = s.targetRA
			s.dec = s.targetDec
			s.gotoFlag = false
		}
	}
	s.x = int(s.now().Sub(s.epoch).Seconds() * float64(s.round) / 86400)
	s.y = s.round - int((90-s.dec)/360*float64(s.round))
}

func step(delta, limit float64) float64 {
	if delta > limit {
		return limit
	}
	if delta < -limit {
		return -limit
	}
	return delta
}

// Handler returns the device's HTTP surface.
func (s *Simulator) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/getversion", s.getVersion)
	r.HandleFunc("/getplace", s.getPlace)
	r.HandleFunc("/gettime", s.getTime)
	r.HandleFunc("/getround", s.getRound)
	r.HandleFunc("/getstatus", s.getStatus)
	r.HandleFunc("/getxy", s.getXY)
	r.HandleFunc("/gotoradec", s.gotoRADec)
	r.HandleFunc("/move", s.move)
	r.HandleFunc("/setspeed", s.setSpeed)
	r.HandleFunc("/stop", s.stop)
	r.HandleFunc("/start", s.start)
	r.HandleFunc("/align", s.align)
	r.HandleFunc("/gohome", s.goHome)
	r.HandleFunc("/getscreen.bin", s.getScreen)
	return r
}

// reply wraps the payload in the HTML comment the real controller
// embeds its answers in.
func reply(w http.ResponseWriter, format string, args ...interface{}) {
	fmt.Fprintf(w, "<!--")
	fmt.Fprintf(w, format, args...)
	fmt.Fprintf(w, "-->")
}

func (s *Simulator) getVersion(w http.ResponseWriter, r *http.Request) {
	reply(w, "version=%s", version)
}

func (s *Simulator) getPlace(w http.ResponseWriter, r *http.Request) {
	reply(w, "longitude=E139+41&latitude=N35+39&timezone=9")
}

func (s *Simulator) getTime(w http.ResponseWriter, r *http.Request) {
	t := s.now()
	reply(w, "time=%d+%d+%d+%d+%d+%d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

func (s *Simulator) getRound(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	round := s.round
	s.mu.Unlock()
	reply(w, "ROUND=%d", round)
}

func (s *Simulator) getStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ra := coord.RAFromHours(s.ra)
	dec := coord.DecFromDegrees(s.dec)
	flag := 0
	if s.gotoFlag {
		flag = 1
	}
	state := "INIT"
	if s.started {
		state = "SCOP"
	}
	s.mu.Unlock()
	reply(w, "RA=%s&DEC=%s&GOTO=%d&STATE=%s", ra.Wire(), dec.Wire(), flag, state)
}

func (s *Simulator) getXY(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	x, y := s.x, s.y
	s.mu.Unlock()
	reply(w, "X=%d&Y=%d", x, y)
}

func (s *Simulator) gotoRADec(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		reply(w, "ERROR:ILLEGAL STATE")
		return
	}
	// The device reads the query literally; a '+' separates the fields
	// and must not be form-decoded into a space.
	var raH, decD int
	var raM, decM float64
	if n, err := fmt.Sscanf(r.URL.RawQuery, "RA=%d+%f&DEC=%d+%f", &raH, &raM, &decD, &decM); err != nil || n != 4 {
		reply(w, "ERROR:FORMAT")
		return
	}
	if raH < 0 || raH > 23 || raM < 0 || raM >= 60 || decD < -90 || decD > 90 || decM < 0 || decM >= 60 {
		reply(w, "ERROR:FORMAT")
		return
	}
	ra := coord.RA{Hour: raH, Min: raM}
	dec := coord.Dec{Deg: decD, Min: decM, Neg: decD < 0 || strings.Contains(r.URL.RawQuery, "DEC=-0+")}
	s.targetRA = ra.Hours()
	s.targetDec = dec.Degrees()
	s.gotoFlag = true
	reply(w, "OK")
}

func (s *Simulator) move(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		reply(w, "ERROR:ILLEGAL STATE")
		return
	}
	reply(w, "OK")
}

func (s *Simulator) setSpeed(w http.ResponseWriter, r *http.Request) {
	var speed int
	if n, err := fmt.Sscanf(r.URL.RawQuery, "speed=%d", &speed); err != nil || n != 1 || speed < 0 || speed > 8 {
		reply(w, "ERROR:FORMAT")
		return
	}
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	reply(w, "OK")
}

func (s *Simulator) stop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		reply(w, "ERROR:ILLEGAL STATE")
		return
	}
	s.targetRA = s.ra
	s.targetDec = s.dec
	s.gotoFlag = false
	reply(w, "OK")
}

func (s *Simulator) start(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	reply(w, "OK")
}

func (s *Simulator) align(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		reply(w, "ERROR:ILLEGAL STATE")
		return
	}
	reply(w, "OK")
}

func (s *Simulator) goHome(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		reply(w, "ERROR:ILLEGAL STATE")
		return
	}
	s.targetRA = 0
	s.targetDec = 0
	s.gotoFlag = true
	reply(w, "OK")
}

// getScreen serves the 12-bit packed framebuffer: two pixels per three
// bytes, no wrapper comment.
func (s *Simulator) getScreen(w http.ResponseWriter, r *http.Request) {
	const size = 320 * 240 * 3 / 2
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(buf)
}
