package main

import (
	"bytes"
	"context"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/w1xm/starbook_interface/internal/metrics"
	"github.com/w1xm/starbook_interface/starbook"
)

// ScreenWatcher grabs the controller's framebuffer on a fixed cadence
// and serves the latest frame as PNG. Each frame is encoded once no
// matter how many clients ask for it. A client that passes the frame
// number it already has long-polls for the next one.
type ScreenWatcher struct {
	sess *starbook.Session
	// Interval between frame grabs.
	Interval time.Duration

	mu       sync.RWMutex
	cond     *sync.Cond
	frame    []byte
	frameNum int
	err      error
}

func NewScreenWatcher(sess *starbook.Session) *ScreenWatcher {
	sw := &ScreenWatcher{
		sess:     sess,
		Interval: 10 * time.Second,
	}
	sw.cond = sync.NewCond(sw.mu.RLocker())
	return sw
}

func (sw *ScreenWatcher) Run(ctx context.Context) error {
	t := time.NewTicker(sw.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		sw.refresh(ctx)
	}
}

func (sw *ScreenWatcher) refresh(ctx context.Context) {
	img, err := sw.sess.Screen(ctx)
	if err != nil {
		log.Printf("screen refresh: %v", err)
		sw.mu.Lock()
		sw.err = err
		sw.mu.Unlock()
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Printf("screen encode: %v", err)
		return
	}
	metrics.ScreenFrames.Inc()
	sw.mu.Lock()
	sw.frame = buf.Bytes()
	sw.frameNum++
	sw.err = nil
	sw.mu.Unlock()
	sw.cond.Broadcast()
}

// next blocks until a frame newer than last exists, then returns it and
// its number. The frame is nil if ctx ends first.
func (sw *ScreenWatcher) next(ctx context.Context, last int) ([]byte, int) {
	go func() {
		<-ctx.Done()
		sw.cond.Broadcast()
	}()
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	for sw.frameNum <= last {
		if ctx.Err() != nil {
			return nil, last
		}
		sw.cond.Wait()
	}
	return sw.frame, sw.frameNum
}

func (sw *ScreenWatcher) ServeScreen(w http.ResponseWriter, r *http.Request) {
	var (
		frame []byte
		num   int
	)
	if v := r.FormValue("frame"); v != "" {
		last, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "bad frame number", http.StatusBadRequest)
			return
		}
		frame, num = sw.next(r.Context(), last)
		if frame == nil {
			return
		}
	} else {
		sw.mu.RLock()
		frame, num = sw.frame, sw.frameNum
		sw.mu.RUnlock()
		if frame == nil {
			// No frame cached yet; grab one for this request.
			sw.refresh(r.Context())
			sw.mu.RLock()
			frame, num = sw.frame, sw.frameNum
			err := sw.err
			sw.mu.RUnlock()
			if frame == nil {
				msg := "no screen frame available"
				if err != nil {
					msg = err.Error()
				}
				http.Error(w, msg, http.StatusServiceUnavailable)
				return
			}
		}
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Frame-Number", strconv.Itoa(num))
	w.Write(frame)
}
