package main

import (
	"context"
	"encoding/binary"
	"io"
	"log"
	"math"
	"net"
	"time"

	"github.com/w1xm/starbook_interface/coord"
	"github.com/w1xm/starbook_interface/starbook"
)

// Stellarium's telescope-control protocol: little-endian frames with RA
// as a uint32 fraction of 24h and DEC as an int32 fraction of a circle.
// http://svn.code.sf.net/p/stellarium/code/trunk/telescope_server/stellarium_telescope_protocol.txt

const (
	stellariumRAUnit  = float64(1<<32) / 24
	stellariumDecUnit = float64(1<<30) / 90
)

type stellariumGoto struct {
	Length uint16
	Type   uint16
	Time   int64
	RA     uint32
	Dec    int32
}

type stellariumPosition struct {
	Length uint16
	Type   uint16
	Time   int64
	RA     uint32
	Dec    int32
	Status uint32
}

// ListenStellarium serves the Stellarium telescope protocol: incoming
// goto frames drive the mount, and the current pointing is reported
// back once a second.
func ListenStellarium(ctx context.Context, addr string, s *Server) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	log.Printf("stellarium protocol on %s", addr)
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go handleStellarium(ctx, conn, s)
	}
}

func handleStellarium(ctx context.Context, conn net.Conn, s *Server) {
	defer conn.Close()
	log.Printf("stellarium client %s connected", conn.RemoteAddr())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		for {
			var msg stellariumGoto
			if err := binary.Read(conn, binary.LittleEndian, &msg); err != nil {
				if err != io.EOF && ctx.Err() == nil {
					log.Printf("stellarium read: %v", err)
				}
				return
			}
			if msg.Type != 0 {
				continue
			}
			ra := coord.RAFromHours(float64(msg.RA) / stellariumRAUnit)
			dec := coord.DecFromDegrees(float64(msg.Dec) / stellariumDecUnit)
			reply, err := s.mount.Goto(ctx, ra, dec)
			switch {
			case err != nil:
				log.Printf("stellarium goto: %v", err)
			case reply != starbook.ReplyOK:
				log.Printf("stellarium goto refused: %s", reply)
			}
		}
	}()

	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st := s.sess.Status()
		msg := stellariumPosition{
			Length: 24,
			Time:   time.Now().UnixMicro(),
			RA:     uint32(math.Mod(st.RA.Hours()+24, 24) * stellariumRAUnit),
			Dec:    int32(st.Dec.Degrees() * stellariumDecUnit),
		}
		if err := binary.Write(conn, binary.LittleEndian, &msg); err != nil {
			return
		}
	}
}
