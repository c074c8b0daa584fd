package starbook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPayload(t *testing.T) {
	for _, tt := range []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{"plain", "<!--OK-->", "OK", false},
		{"status", "<html><!--RA=1+2.5&DEC=3+4.5&GOTO=0&STATE=SCOP--></html>", "RA=1+2.5&DEC=3+4.5&GOTO=0&STATE=SCOP", false},
		{"no_comment", "OK", "", true},
		{"unterminated", "<!--OK", "", true},
		{"empty", "", "", true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Payload(tt.reply)
			if tt.wantErr {
				if !errors.Is(err, ErrProtocol) {
					t.Fatalf("Payload(%q) error = %v, want ErrProtocol", tt.reply, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Payload(%q) returned %v", tt.reply, err)
			}
			if diff := cmp.Diff(got, tt.want); diff != "" {
				t.Errorf("Payload(%q) diff (got +want):\n%s", tt.reply, diff)
			}
		})
	}
}

func TestSendScan(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getstatus" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<!--RA=12+34.500000&DEC=-41+16.000000&GOTO=1&STATE=GOTO-->"))
	}))
	defer ts.Close()

	tr := NewTransport(ts.URL)
	var (
		raH, decD, gotoFlag int
		raM, decM           float64
		state               string
	)
	payload, err := tr.SendScan(context.Background(), "getstatus", statusFormat,
		&raH, &raM, &decD, &decM, &gotoFlag, &state)
	if err != nil {
		t.Fatalf("SendScan returned %v", err)
	}
	if raH != 12 || raM != 34.5 || decD != -41 || decM != 16 || gotoFlag != 1 || state != "GOTO" {
		t.Errorf("SendScan parsed RA=%d+%f DEC=%d+%f GOTO=%d STATE=%s", raH, raM, decD, decM, gotoFlag, state)
	}
	if want := "RA=12+34.500000&DEC=-41+16.000000&GOTO=1&STATE=GOTO"; payload != want {
		t.Errorf("SendScan payload = %q, want %q", payload, want)
	}
}

func TestSendScanGarbled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!--WHAT-->"))
	}))
	defer ts.Close()

	tr := NewTransport(ts.URL)
	var round int
	if _, err := tr.SendScan(context.Background(), "getround", "ROUND=%d", &round); !errors.Is(err, ErrProtocol) {
		t.Errorf("SendScan on garbled reply = %v, want ErrProtocol", err)
	}
}

func TestSendExpect(t *testing.T) {
	replies := map[string]string{
		"/ok":       "<!--OK-->",
		"/illegal":  "<!--ERROR:ILLEGAL STATE-->",
		"/format":   "<!--ERROR:FORMAT-->",
		"/horizon":  "<!--ERROR:BELOW HORIZON-->",
		"/bare":     "OK",
		"/trailing": "<!--OK leaving init screen-->",
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply, found := replies[r.URL.Path]
		if !found {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(reply))
	}))
	defer ts.Close()

	tr := NewTransport(ts.URL)
	for _, tt := range []struct {
		cmd  string
		want string
	}{
		{"ok", ReplyOK},
		{"illegal", ReplyIllegalState},
		{"format", "ERROR:FORMAT"},
		{"horizon", "ERROR:BELOW HORIZON"},
		{"bare", ReplyOK},
		{"trailing", ReplyOK},
	} {
		t.Run(tt.cmd, func(t *testing.T) {
			got, err := tr.SendExpect(context.Background(), tt.cmd, ReplyOK)
			if err != nil {
				t.Fatalf("SendExpect(%q) returned %v", tt.cmd, err)
			}
			if got != tt.want {
				t.Errorf("SendExpect(%q) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestSendCommunicationError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	tr := NewTransport(ts.URL)
	if _, err := tr.Send(context.Background(), "getversion"); !errors.Is(err, ErrCommunication) {
		t.Errorf("Send on HTTP 503 = %v, want ErrCommunication", err)
	}

	ts.Close()
	if _, err := tr.Send(context.Background(), "getversion"); !errors.Is(err, ErrCommunication) {
		t.Errorf("Send on closed server = %v, want ErrCommunication", err)
	}
}
