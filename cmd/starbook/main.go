// Binary starbook bridges a Vixen STAR BOOK mount controller to a web
// UI, Stellarium, MQTT and Prometheus.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/w1xm/starbook_interface/catalog"
	"github.com/w1xm/starbook_interface/internal/config"
	"github.com/w1xm/starbook_interface/internal/metrics"
	"github.com/w1xm/starbook_interface/mount"
	"github.com/w1xm/starbook_interface/starbook"
)

var (
	addr       = flag.String("addr", ":8080", "listen address for the HTTP API")
	device     = flag.String("device", "", "STAR BOOK address, e.g. 169.254.1.1; overrides the config file")
	simulator  = flag.Bool("simulator", false, "run against the in-process simulated controller")
	configPath = flag.String("config", "", "path to the YAML configuration file")
	staticDir  = flag.String("static_dir", "static", "directory with the web UI")
	stellarium = flag.String("stellarium", "", "listen address for the Stellarium telescope protocol, e.g. :10001")
)

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
	}
	if *device != "" {
		cfg.Device.Address = *device
	}
	if *simulator {
		cfg.Device.Simulator = true
	}

	server := NewServer()

	var bridge *mqttBridge
	if cfg.MQTT.Broker != "" {
		var err error
		bridge, err = newMQTTBridge(cfg.MQTT)
		if err != nil {
			log.Printf("%v; continuing without MQTT", err)
		} else {
			defer bridge.close()
		}
	}

	statusCallback := func(st starbook.Status) {
		updateStatusMetrics(st)
		server.setStatus(st)
		if bridge != nil {
			bridge.publishStatus(server.statusMessage(st))
		}
	}

	var (
		sess *starbook.Session
		err  error
	)
	if cfg.Device.Simulator {
		sess, err = starbook.ConnectSimulator(ctx, statusCallback)
	} else {
		sess, err = starbook.Connect(ctx, cfg.Device.Address, statusCallback)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer sess.Close()
	server.sess = sess

	cat := catalog.New()
	site := cfg.Site
	if site.Latitude == 0 && site.Longitude == 0 {
		place := sess.Status().Place
		site.Latitude, site.Longitude = place.Latitude, place.Longitude
	}
	cat.SetSite(site.Latitude, site.Longitude, site.Height)
	sess.SetResolver(cat)
	server.catalog = cat
	server.siteLatitude, server.siteLongitude = site.Latitude, site.Longitude

	var m mount.Mount = sess
	if site.MinAltitude > 0 {
		m = mount.NewAltitudeLimit(sess, site.Latitude, site.Longitude, site.MinAltitude)
	}
	server.mount = m

	sess.SetAutoRevert(cfg.AutoRevert)
	sess.SetEventCallback(func(e starbook.Event) {
		log.Printf("mount event: %s", e)
		if bridge != nil {
			bridge.publishEvent(e)
		}
	})

	if cfg.PollSeconds > 0 {
		sess.Poller().Interval = time.Duration(cfg.PollSeconds) * time.Second
	}
	sess.Poller().Observe = func(err error) {
		if err != nil {
			metrics.Polls.WithLabelValues("error").Inc()
			return
		}
		metrics.Polls.WithLabelValues("ok").Inc()
	}
	sess.StartPoller(ctx)

	watcher := NewScreenWatcher(sess)
	if cfg.ScreenSeconds > 0 {
		watcher.Interval = time.Duration(cfg.ScreenSeconds) * time.Second
	}

	r := mux.NewRouter()
	r.Use(metrics.Middleware)
	r.HandleFunc("/api/status", server.StatusHandler)
	r.HandleFunc("/api/ws", server.StatusSocketHandler)
	r.HandleFunc("/api/command", server.CommandHandler).Methods("POST")
	r.HandleFunc("/api/objects", server.ObjectsHandler)
	r.HandleFunc("/api/screen.png", watcher.ServeScreen)
	r.Handle("/metrics", metrics.Handler())
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(*staticDir)))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	if *stellarium != "" {
		g.Go(func() error {
			return ListenStellarium(ctx, *stellarium, server)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}

func updateStatusMetrics(st starbook.Status) {
	metrics.GotoInProgress.Set(boolGauge(st.GotoInProgress))
	metrics.ReversalHazard.Set(boolGauge(st.Encoders.Hazard))
	if st.Encoders.RateValid {
		metrics.SiderealRate.Set(st.Encoders.Rate)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
