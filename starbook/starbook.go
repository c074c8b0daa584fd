package starbook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/w1xm/starbook_interface/coord"
)

// State is the raw four-character state code reported by the device.
type State string

const (
	StateInit  State = "INIT"
	StateScope State = "SCOP"
	StateGoto  State = "GOTO"
	StateUser  State = "USER"
	StateChart State = "CHRT"
)

// Event is an edge-triggered state-change notification.
type Event string

const (
	EventGotoStart   Event = "goto_start"
	EventGotoReached Event = "goto_reached"
	EventMoving      Event = "moving"
	EventIdle        Event = "idle"
)

type (
	StatusCallback func(Status)
	EventCallback  func(Event)
)

// Resolver maps an object name to its coordinates.
type Resolver interface {
	Resolve(name string) (coord.RA, coord.Dec, error)
}

// Target is the most recently commanded position. It is set by a goto
// and replaced only by the next one.
type Target struct {
	RA   coord.RA
	Dec  coord.Dec
	Name string
}

// Place is the observing site configured on the device.
type Place struct {
	// Longitude is in decimal degrees, east positive.
	Longitude float64
	// Latitude is in decimal degrees, north positive.
	Latitude float64
	// Timezone is the UTC offset in hours.
	Timezone int
}

// Status is the full mount state as of the last refresh. It is only
// ever replaced as a whole; callers always see a consistent snapshot.
type Status struct {
	RA  coord.RA
	Dec coord.Dec
	// State is the raw code from the device.
	State State
	// GotoInProgress reports the device's GOTO flag; while set the
	// effective state is GOTO regardless of the raw code.
	GotoInProgress bool
	Target         Target
	Speed          int
	Simulated      bool
	Round          int
	Version        string
	Place          Place
	Time           time.Time
	Encoders       EncoderStatus
}

// Effective folds the goto flag into the state code.
func (s Status) Effective() State {
	if s.GotoInProgress {
		return StateGoto
	}
	return s.State
}

const (
	// DefaultRound is the encoder modulus assumed in simulate mode.
	DefaultRound = 8640000

	statusFormat = "RA=%d+%f&DEC=%d+%f&GOTO=%d&STATE=%s"
)

// Session owns a connection to one mount. All operations serialize on
// an internal mutex; callbacks are invoked with the lock released.
type Session struct {
	statusCallback StatusCallback

	// ctx is the connection lifetime, used when operations restart the
	// poller.
	ctx    context.Context
	poller *Poller

	mu            sync.Mutex
	t             *Transport
	simulate      bool
	eventCallback EventCallback
	resolver      Resolver
	status        Status

	// rate window anchors; see refreshEncodersLocked.
	anchorX    int
	anchorTime time.Time
	haveAnchor bool

	reverting  bool
	autoRevert bool

	polling    bool
	pollCancel context.CancelFunc

	simStart time.Time

	now func() time.Time
}

// Connect opens a session against the device at addr. An unreachable
// device is not fatal: the session downgrades to simulate mode so the
// rest of the system keeps working offline. addr "simulator" (or empty)
// selects simulate mode outright.
func Connect(ctx context.Context, addr string, statusCallback StatusCallback) (*Session, error) {
	s := &Session{
		statusCallback: statusCallback,
		ctx:            ctx,
		now:            time.Now,
	}
	s.poller = &Poller{sess: s, Interval: DefaultPollInterval}
	s.status.State = StateInit
	if addr == "" || addr == "simulator" {
		s.initSimulate()
		return s, nil
	}
	s.t = NewTransport(addr)
	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var version string
	if _, err := s.t.SendScan(probeCtx, "getversion", "version=%s", &version); err != nil {
		log.Printf("device %q unreachable (%v); running in simulate mode", addr, err)
		s.initSimulate()
		return s, nil
	}
	s.status.Version = version
	if err := s.fetchDeviceInfo(ctx); err != nil {
		log.Printf("device %q: %v; running in simulate mode", addr, err)
		s.initSimulate()
		return s, nil
	}
	return s, nil
}

func (s *Session) initSimulate() {
	now := s.now()
	s.simulate = true
	s.t = nil
	s.status.Simulated = true
	s.status.Version = "simulator"
	// Factory default site and the usual encoder modulus.
	s.status.Place = Place{Longitude: 139 + 41.0/60, Latitude: 35 + 39.0/60, Timezone: 9}
	s.status.Time = now
	s.status.Round = DefaultRound
	s.simStart = now
}

// fetchDeviceInfo caches the device constants a fresh session needs:
// site placement, device clock, and the encoder revolution modulus.
func (s *Session) fetchDeviceInfo(ctx context.Context) error {
	var (
		ew, ns                 string
		lonD, lonM, latD, latM int
		tz                     int
	)
	if _, err := s.t.SendScan(ctx, "getplace", "longitude=%1s%d+%d&latitude=%1s%d+%d&timezone=%d",
		&ew, &lonD, &lonM, &ns, &latD, &latM, &tz); err != nil {
		return err
	}
	place := Place{
		Longitude: float64(lonD) + float64(lonM)/60,
		Latitude:  float64(latD) + float64(latM)/60,
		Timezone:  tz,
	}
	if ew == "W" {
		place.Longitude = -place.Longitude
	}
	if ns == "S" {
		place.Latitude = -place.Latitude
	}

	var y, mo, d, h, mi, sec int
	if _, err := s.t.SendScan(ctx, "gettime", "time=%d+%d+%d+%d+%d+%d", &y, &mo, &d, &h, &mi, &sec); err != nil {
		return err
	}

	var round int
	if _, err := s.t.SendScan(ctx, "getround", "ROUND=%d", &round); err != nil {
		return err
	}

	s.mu.Lock()
	s.status.Place = place
	s.status.Time = time.Date(y, time.Month(mo), d, h, mi, sec, 0, time.FixedZone(fmt.Sprintf("UTC%+d", tz), tz*3600))
	s.status.Round = round
	s.mu.Unlock()
	return nil
}

// Status returns a snapshot of the mount state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetEventCallback registers the edge-event observer. Set it before the
// poller starts.
func (s *Session) SetEventCallback(cb EventCallback) {
	s.mu.Lock()
	s.eventCallback = cb
	s.mu.Unlock()
}

// SetResolver plugs in object-name resolution for GotoObject.
func (s *Session) SetResolver(r Resolver) {
	s.mu.Lock()
	s.resolver = r
	s.mu.Unlock()
}

// SetAutoRevert enables automatic meridian-flip handling: when the
// encoder check reports a hazard while tracking, the session reverts on
// its own.
func (s *Session) SetAutoRevert(enabled bool) {
	s.mu.Lock()
	s.autoRevert = enabled
	s.mu.Unlock()
}

// RefreshStatus performs one status tick: it reads (or simulates) the
// current pointing and state, raises edge notifications, refreshes the
// encoder hazard check, and always finishes with an updated callback.
// Communication failures propagate to the caller (halting the poller);
// garbled replies are logged and the tick proceeds with the previous
// coordinates.
func (s *Session) RefreshStatus(ctx context.Context) error {
	s.mu.Lock()
	prevGoto := s.status.GotoInProgress || s.status.State == StateGoto

	if s.simulate {
		s.stepSimulate()
	} else if err := s.scanStatusLocked(ctx); err != nil {
		if !errors.Is(err, ErrProtocol) {
			s.mu.Unlock()
			return err
		}
		log.Printf("status refresh: %v", err)
	}

	reached := prevGoto && !s.status.GotoInProgress && s.status.State == StateScope

	if err := s.refreshEncodersLocked(ctx); err != nil {
		if !errors.Is(err, ErrProtocol) {
			s.mu.Unlock()
			return err
		}
		log.Printf("encoder refresh: %v", err)
	}
	doRevert := s.status.Encoders.Hazard && s.autoRevert && !s.reverting &&
		s.status.Effective() == StateScope
	status := s.status
	s.mu.Unlock()

	if reached {
		s.notifyEvent(EventGotoReached)
		s.notifyEvent(EventIdle)
	}
	s.notifyStatus(status)

	if doRevert {
		log.Printf("reversal hazard while tracking; reverting")
		if err := s.Revert(ctx); err != nil {
			log.Printf("auto revert: %v", err)
		}
	}
	return nil
}

func (s *Session) scanStatusLocked(ctx context.Context) error {
	var (
		raH, decD, gotoFlag int
		raM, decM           float64
		code                string
	)
	payload, err := s.t.SendScan(ctx, "getstatus", statusFormat,
		&raH, &raM, &decD, &decM, &gotoFlag, &code)
	if err != nil {
		return err
	}
	s.status.RA = coord.RA{Hour: raH, Min: raM}
	// %d cannot represent a signed zero, so the sign of "DEC=-0+30"
	// must come from the payload text.
	neg := decD < 0 || strings.Contains(payload, "DEC=-")
	s.status.Dec = coord.Dec{Deg: decD, Min: decM, Neg: neg}
	s.status.GotoInProgress = gotoFlag != 0
	s.status.State = State(code)
	return nil
}

const (
	// Per-tick simulate-mode step bounds.
	simStepRA  = 1.0 // hours
	simStepDec = 4.0 // degrees
	// simArrive is the remaining-delta threshold below which a
	// simulated goto counts as finished.
	simArrive = 0.01
)

// stepSimulate advances the simulated mount one bounded step toward the
// target. The goto flag is derived after the step: still set while
// either axis has farther to travel than simArrive.
func (s *Session) stepSimulate() {
	ra := s.status.RA.Hours() + clamp(s.status.Target.RA.Hours()-s.status.RA.Hours(), simStepRA)
	dec := s.status.Dec.Degrees() + clamp(s.status.Target.Dec.Degrees()-s.status.Dec.Degrees(), simStepDec)
	s.status.RA = coord.RAFromHours(ra)
	s.status.Dec = coord.DecFromDegrees(dec)
	s.status.GotoInProgress = math.Abs(s.status.Target.RA.Hours()-ra) > simArrive ||
		math.Abs(s.status.Target.Dec.Degrees()-dec) > simArrive
	if s.status.State == StateInit || s.status.State == StateGoto {
		s.status.State = StateScope
	}
	s.status.Time = s.now()
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Goto slews to the given coordinates. The device's own refusals
// (ERROR:BELOW HORIZON, ERROR:ILLEGAL STATE, ERROR:FORMAT) come back as
// the reply value with a nil error so callers can surface them.
func (s *Session) Goto(ctx context.Context, ra coord.RA, dec coord.Dec) (string, error) {
	s.mu.Lock()
	if s.simulate {
		s.status.Target = Target{RA: ra, Dec: dec}
		s.mu.Unlock()
		s.notifyEvent(EventGotoStart)
		s.notifyEvent(EventMoving)
		return ReplyOK, nil
	}
	t := s.t
	s.mu.Unlock()

	reply, err := t.SendExpect(ctx, fmt.Sprintf("gotoradec?RA=%s&DEC=%s", ra.Wire(), dec.Wire()), ReplyOK)
	if err != nil {
		return "", err
	}
	if reply != ReplyOK {
		return reply, nil
	}
	s.mu.Lock()
	s.status.Target = Target{RA: ra, Dec: dec}
	s.mu.Unlock()
	s.notifyEvent(EventGotoStart)
	s.notifyEvent(EventMoving)
	return reply, nil
}

// GotoObject resolves a name through the configured Resolver and slews
// to it. Resolution failures are reported to the caller and leave the
// mount untouched.
func (s *Session) GotoObject(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	r := s.resolver
	s.mu.Unlock()
	if r == nil {
		return "", fmt.Errorf("no catalog configured to resolve %q", name)
	}
	ra, dec, err := r.Resolve(name)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", name, err)
	}
	reply, err := s.Goto(ctx, ra, dec)
	if err == nil && reply == ReplyOK {
		s.mu.Lock()
		s.status.Target.Name = name
		s.mu.Unlock()
	}
	return reply, err
}

// SetTargetName annotates the current target, typically after a goto
// commanded by catalog name.
func (s *Session) SetTargetName(name string) {
	s.mu.Lock()
	s.status.Target.Name = name
	s.mu.Unlock()
}

// Move starts continuous motion in the given directions; it runs until
// another Move with all directions false, or Stop.
func (s *Session) Move(ctx context.Context, north, south, east, west bool) error {
	s.mu.Lock()
	sim := s.simulate
	t := s.t
	s.mu.Unlock()
	if !sim {
		cmd := fmt.Sprintf("move?north=%d&south=%d&east=%d&west=%d",
			b2i(north), b2i(south), b2i(east), b2i(west))
		if _, err := t.SendExpect(ctx, cmd, ReplyOK); err != nil {
			return err
		}
	}
	if north || south || east || west {
		s.notifyEvent(EventMoving)
	} else {
		s.notifyEvent(EventIdle)
	}
	return nil
}

// Stop halts all motion and clears any reversal in progress. The device
// legitimately answers ERROR:ILLEGAL STATE when there is nothing to
// stop; that is not an error here.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	sim := s.simulate
	t := s.t
	if sim {
		// Freeze: aim the target at wherever we are now.
		s.status.Target.RA = s.status.RA
		s.status.Target.Dec = s.status.Dec
		s.status.Target.Name = ""
		s.status.GotoInProgress = false
	}
	s.reverting = false
	s.mu.Unlock()
	if !sim {
		if _, err := t.SendExpect(ctx, "stop", ReplyOK); err != nil {
			return err
		}
	}
	s.notifyEvent(EventIdle)
	return nil
}

// SetSpeed sets the motion speed level, rounded to nearest and clamped
// to the device's 0..8 range.
func (s *Session) SetSpeed(ctx context.Context, level float64) error {
	n := int(math.Round(level))
	if n < 0 {
		n = 0
	}
	if n > 8 {
		n = 8
	}
	s.mu.Lock()
	sim := s.simulate
	t := s.t
	s.mu.Unlock()
	if !sim {
		if _, err := t.SendExpect(ctx, fmt.Sprintf("setspeed?speed=%d", n), ReplyOK); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.status.Speed = n
	s.mu.Unlock()
	return nil
}

// Align tells the device its current position matches the last
// commanded target. Pure pass-through; the device does the bookkeeping.
func (s *Session) Align(ctx context.Context) error {
	s.mu.Lock()
	sim := s.simulate
	t := s.t
	s.mu.Unlock()
	if sim {
		return nil
	}
	_, err := t.SendExpect(ctx, "align", ReplyOK)
	return err
}

// Home sends the mount to its home position.
func (s *Session) Home(ctx context.Context) error {
	s.mu.Lock()
	sim := s.simulate
	t := s.t
	s.mu.Unlock()
	if sim {
		_, err := s.Goto(ctx, coord.RA{}, coord.Dec{})
		return err
	}
	_, err := t.SendExpect(ctx, "gohome?home=0", ReplyOK)
	return err
}

// Start leaves the device's init screen and begins (or resumes)
// automatic status polling.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	sim := s.simulate
	t := s.t
	s.mu.Unlock()
	if sim {
		s.mu.Lock()
		if s.status.State == StateInit {
			s.status.State = StateScope
		}
		s.mu.Unlock()
	} else {
		// The reply varies by which screen the device is showing; there
		// is nothing to check.
		if _, err := t.Send(ctx, "start"); err != nil {
			return err
		}
	}
	s.StartPoller(s.ctx)
	return nil
}

// Revert re-issues a goto to the mount's own current coordinates, which
// provokes the device's internal meridian-flip routine, and waits for
// it to finish. It is a no-op unless the mount is idle and no reversal
// is already in progress.
func (s *Session) Revert(ctx context.Context) error {
	s.mu.Lock()
	if s.reverting || s.status.Effective() != StateScope {
		s.mu.Unlock()
		return nil
	}
	s.reverting = true
	ra, dec := s.status.RA, s.status.Dec
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.reverting = false
		s.mu.Unlock()
	}()

	log.Printf("reverting: goto %v %v", ra, dec)
	reply, err := s.Goto(ctx, ra, dec)
	if err != nil {
		return err
	}
	if reply != ReplyOK {
		log.Printf("revert refused: %s", reply)
		return nil
	}
	return s.WaitGoto(ctx)
}

// WaitGoto polls until the mount is no longer executing a goto.
func (s *Session) WaitGoto(ctx context.Context) error {
	for {
		if err := s.RefreshStatus(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		done := s.status.Effective() != StateGoto
		s.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// Close halts the status poller. It does not contact the device.
func (s *Session) Close() error {
	s.StopPoller()
	return nil
}

// Poller exposes the session's poller for tuning before it starts.
func (s *Session) Poller() *Poller {
	return s.poller
}

// StartPoller begins automatic status polling if it is not already
// running.
func (s *Session) StartPoller(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.polling {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.polling = true
	s.pollCancel = cancel
	go func() {
		err := s.poller.Run(ctx)
		s.mu.Lock()
		s.polling = false
		s.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("polling stopped: %v", err)
		}
	}()
}

// StopPoller halts automatic status polling.
func (s *Session) StopPoller() {
	s.mu.Lock()
	cancel := s.pollCancel
	s.pollCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) notifyStatus(status Status) {
	if s.statusCallback != nil {
		s.statusCallback(status)
	}
}

func (s *Session) notifyEvent(e Event) {
	s.mu.Lock()
	cb := s.eventCallback
	s.mu.Unlock()
	if cb != nil {
		cb(e)
	}
}
