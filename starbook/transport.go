// Package starbook speaks the STAR BOOK mount controller's HTTP
// command protocol: issuing motion and goto commands, polling status
// and encoder telemetry, and fetching the packed framebuffer.
package starbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrCommunication covers an unreachable device or a failed HTTP
	// round trip.
	ErrCommunication = errors.New("starbook: communication error")
	// ErrProtocol covers a reachable device sending a reply we cannot
	// interpret.
	ErrProtocol = errors.New("starbook: protocol error")
)

const (
	ReplyOK           = "OK"
	ReplyIllegalState = "ERROR:ILLEGAL STATE"
)

// Transport issues one command against the device base URL and parses
// its reply. All replies are tiny; bodies are read whole.
type Transport struct {
	base   string
	client *http.Client
}

func NewTransport(addr string) *Transport {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Transport{
		base:   strings.TrimRight(addr, "/"),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Send issues the command and returns the raw reply body.
func (t *Transport) Send(ctx context.Context, cmd string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/"+cmd, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s returned %s", ErrCommunication, cmd, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading reply to %s: %v", ErrCommunication, cmd, err)
	}
	return string(body), nil
}

// SendRaw issues the command and returns the reply body as bytes
// (getscreen.bin is binary, not text).
func (t *Transport) SendRaw(ctx context.Context, cmd string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/"+cmd, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrCommunication, cmd, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading reply to %s: %v", ErrCommunication, cmd, err)
	}
	return body, nil
}

// Payload extracts the formatted span the device wraps in an HTML
// comment.
func Payload(reply string) (string, error) {
	i := strings.Index(reply, "<!--")
	j := strings.Index(reply, "-->")
	if i < 0 || j < i {
		return "", fmt.Errorf("%w: no comment delimiters in %q", ErrProtocol, snippet(reply))
	}
	return reply[i+4 : j], nil
}

// SendScan issues the command and scans the comment-delimited payload
// against format. The payload is returned so callers can re-inspect the
// raw text (the DEC sign check needs it).
func (t *Transport) SendScan(ctx context.Context, cmd, format string, args ...interface{}) (string, error) {
	reply, err := t.Send(ctx, cmd)
	if err != nil {
		return "", err
	}
	payload, err := Payload(reply)
	if err != nil {
		return "", err
	}
	if _, err := fmt.Sscanf(payload, format, args...); err != nil {
		return "", fmt.Errorf("%w: scanning %q from %s: %v", ErrProtocol, payload, cmd, err)
	}
	return payload, nil
}

// SendExpect issues the command and checks the reply for a literal.
// A reply that instead reports ILLEGAL STATE comes back as the
// ReplyIllegalState value with a nil error so callers can branch on it;
// any other unexpected reply is logged and returned as-is.
func (t *Transport) SendExpect(ctx context.Context, cmd, want string) (string, error) {
	reply, err := t.Send(ctx, cmd)
	if err != nil {
		return "", err
	}
	if payload, err := Payload(reply); err == nil {
		reply = payload
	}
	if strings.Contains(reply, want) {
		return want, nil
	}
	log.Printf("%s: unexpected reply %q (want %q)", cmd, snippet(reply), want)
	if strings.Contains(reply, "ILLEGAL STATE") {
		return ReplyIllegalState, nil
	}
	return strings.TrimSpace(reply), nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
