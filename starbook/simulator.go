package starbook

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/w1xm/starbook_interface/starbook/simulator"
)

// ConnectSimulator starts an in-process simulated controller on a
// loopback port and connects a session to it over real HTTP, so the
// whole transport stack is exercised even without hardware. Everything
// shuts down with ctx.
func ConnectSimulator(ctx context.Context, statusCallback StatusCallback) (*Session, error) {
	sim := simulator.New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("%w: simulator listen: %v", ErrCommunication, err)
	}
	srv := &http.Server{Handler: sim.Handler()}
	go srv.Serve(ln)
	go sim.Run(ctx)
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	return Connect(ctx, ln.Addr().String(), statusCallback)
}
