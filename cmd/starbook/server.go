package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/w1xm/starbook_interface/catalog"
	"github.com/w1xm/starbook_interface/coord"
	"github.com/w1xm/starbook_interface/internal/metrics"
	"github.com/w1xm/starbook_interface/mount"
	"github.com/w1xm/starbook_interface/starbook"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server is the HTTP surface over one mount session: a status snapshot,
// a websocket push stream, and the command dispatcher.
type Server struct {
	sess    *starbook.Session
	mount   mount.Mount
	catalog *catalog.Catalog

	// Observing site, for the horizontal readout in status messages.
	siteLatitude  float64
	siteLongitude float64

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     starbook.Status
	statusSeq  int
}

func NewServer() *Server {
	s := &Server{}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

// setStatus publishes a snapshot to every websocket watcher.
func (s *Server) setStatus(status starbook.Status) {
	s.statusMu.Lock()
	s.status = status
	s.statusSeq++
	s.statusMu.Unlock()
	s.statusCond.Broadcast()
}

// StatusMessage is the JSON shape served to clients: the raw status
// plus a few derived conveniences, including where the mount points in
// the local sky right now.
type StatusMessage struct {
	starbook.Status
	EffectiveState starbook.State
	RAString       string
	DecString      string
	Azimuth        float64
	Altitude       float64
}

func (s *Server) statusMessage(st starbook.Status) StatusMessage {
	msg := StatusMessage{
		Status:         st,
		EffectiveState: st.Effective(),
		RAString:       st.RA.String(),
		DecString:      st.Dec.String(),
	}
	lst := coord.LocalSidereal(time.Now().UTC(), s.siteLongitude)
	msg.Azimuth, msg.Altitude = coord.Horizontal(st.RA, st.Dec, lst, s.siteLatitude)
	return msg
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.statusMessage(s.sess.Status())); err != nil {
		log.Printf("encoding status: %v", err)
	}
}

func (s *Server) ObjectsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.catalog.Objects()); err != nil {
		log.Printf("encoding objects: %v", err)
	}
}

// StatusSocketHandler streams every status update over a websocket.
func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer c.Close()
	metrics.WebsocketClients.Inc()
	defer metrics.WebsocketClients.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The read side doubles as the command channel: clients may send
	// Command JSON over the socket instead of POSTing it.
	go func() {
		defer cancel()
		for {
			var cmd Command
			if err := c.ReadJSON(&cmd); err != nil {
				return
			}
			if reply, err := s.runCommand(ctx, cmd); err != nil {
				log.Printf("websocket command %q: %v", cmd.Command, err)
			} else if reply != starbook.ReplyOK {
				log.Printf("websocket command %q refused: %s", cmd.Command, reply)
			}
		}
	}()
	// Wake the push loop out of its Wait when the client goes away.
	go func() {
		<-ctx.Done()
		s.statusCond.Broadcast()
	}()

	lastSeq := -1
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	for {
		if ctx.Err() != nil {
			return
		}
		if s.statusSeq == lastSeq {
			s.statusCond.Wait()
			continue
		}
		lastSeq = s.statusSeq
		status := s.status
		s.statusMu.RUnlock()
		err := c.WriteJSON(s.statusMessage(status))
		s.statusMu.RLock()
		if err != nil {
			return
		}
	}
}

// Command is one request from the UI.
type Command struct {
	Command string `json:"command"`
	// RA and Dec accept a decimal number, a [value, minutes] or
	// [value, minutes, seconds] array, or a text form like "5h35m17s".
	RA  interface{} `json:"ra,omitempty"`
	Dec interface{} `json:"dec,omitempty"`
	// Name selects a catalog object instead of coordinates.
	Name  string  `json:"name,omitempty"`
	North bool    `json:"north,omitempty"`
	South bool    `json:"south,omitempty"`
	East  bool    `json:"east,omitempty"`
	West  bool    `json:"west,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

type commandReply struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

var errUnknownCommand = errors.New("unknown command")

func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := s.runCommand(r.Context(), cmd)

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(commandStatus(err))
		json.NewEncoder(w).Encode(commandReply{Error: err.Error()})
		return
	}
	json.NewEncoder(w).Encode(commandReply{Reply: reply})
}

// runCommand dispatches one command and records its outcome.
func (s *Server) runCommand(ctx context.Context, cmd Command) (string, error) {
	reply, err := s.dispatch(ctx, cmd)

	result := "ok"
	if err != nil {
		result = "error"
	} else if reply != starbook.ReplyOK {
		result = "refused"
	}
	metrics.Commands.WithLabelValues(cmd.Command, result).Inc()
	return reply, err
}

// commandStatus maps dispatch failures onto HTTP status codes.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, coord.ErrInvalidCoordinate), errors.Is(err, errUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, starbook.ErrCommunication):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) dispatch(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Command {
	case "goto":
		if cmd.Name != "" {
			ra, dec, err := s.catalog.Resolve(cmd.Name)
			if err != nil {
				return "", err
			}
			reply, err := s.mount.Goto(ctx, ra, dec)
			if err == nil && reply == starbook.ReplyOK {
				s.sess.SetTargetName(cmd.Name)
			}
			return reply, err
		}
		ra, err := coord.ParseRA(cmd.RA)
		if err != nil {
			return "", err
		}
		dec, err := coord.ParseDec(cmd.Dec)
		if err != nil {
			return "", err
		}
		return s.mount.Goto(ctx, ra, dec)
	case "move":
		return starbook.ReplyOK, s.mount.Move(ctx, cmd.North, cmd.South, cmd.East, cmd.West)
	case "stop":
		return starbook.ReplyOK, s.mount.Stop(ctx)
	case "speed":
		return starbook.ReplyOK, s.mount.SetSpeed(ctx, cmd.Speed)
	case "align":
		return starbook.ReplyOK, s.mount.Align(ctx)
	case "home":
		return starbook.ReplyOK, s.mount.Home(ctx)
	case "start":
		return starbook.ReplyOK, s.mount.Start(ctx)
	case "revert":
		if rev, ok := s.mount.(mount.Reverter); ok {
			return starbook.ReplyOK, rev.Revert(ctx)
		}
		return starbook.ReplyOK, s.sess.Revert(ctx)
	default:
		return "", fmt.Errorf("%w: %q", errUnknownCommand, cmd.Command)
	}
}
