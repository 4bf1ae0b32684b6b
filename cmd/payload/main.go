// Command payload runs on the balloon: it samples the sensors, logs and
// transmits each record over the radio, sends heartbeats, and fires the
// cutdown on command or when the mission ceiling is reached.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"

	"github.com/banshee-data/skylink/internal/config"
	"github.com/banshee-data/skylink/internal/csvlog"
	"github.com/banshee-data/skylink/internal/cutdown"
	"github.com/banshee-data/skylink/internal/db"
	"github.com/banshee-data/skylink/internal/frame"
	"github.com/banshee-data/skylink/internal/fsutil"
	"github.com/banshee-data/skylink/internal/payload"
	"github.com/banshee-data/skylink/internal/radio"
	"github.com/banshee-data/skylink/internal/sensors"
	"github.com/banshee-data/skylink/internal/serialmux"
	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/timeutil"
	"github.com/banshee-data/skylink/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode: no radio, log-only cutdown output")
	disableRadio  = flag.Bool("disable-radio", false, "Run without a radio")
	port          = flag.String("port", "/dev/ttyAMA0", "Radio serial port (ignored in dev mode)")
	configPath    = flag.String("config", "", "Link config JSON (defaults when empty)")
	dbPath        = flag.String("db", "payload.db", "Path to the local sqlite log (empty disables)")
	csvPattern    = flag.String("csv", csvlog.DefaultPattern, "CSV log filename pattern (empty disables)")
	gpioChip      = flag.String("gpio-chip", "/dev/gpiochip0", "GPIO character device for the cutdown output")
	gpioLine      = flag.Uint("gpio-line", 17, "GPIO line offset of the cutdown output")
	gpioActiveLow = flag.Bool("gpio-active-low", false, "Cutdown output is active low")
	missionID     = flag.String("mission-id", "", "Mission identifier for the event log (random when empty)")
	seed          = flag.Uint64("seed", 0, "Seed for the simulated sensors (time based when 0)")
	gpsDropout    = flag.Float64("gps-dropout", 0, "Probability the simulated GPS reports no fix")
	listen        = flag.String("listen", "", "Listen address for /debug/ admin routes (disabled when empty)")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("payload"))
		return
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	framer, framerOpt := radio.NewFramer()
	var radioSerial serialmux.SerialMuxInterface
	if *devMode || *disableRadio {
		radioSerial = serialmux.NewDisabledSerialMux()
	} else {
		radioSerial, err = serialmux.NewRealSerialMux(*port, cfg.PortOptions(), framerOpt)
		if err != nil {
			log.Fatalf("failed to open radio port: %v", err)
		}
		log.Printf("radio on %s at %s", *port, cfg.PortOptions())
	}
	rdo := radio.New(radioSerial, framer, radio.Config{
		SystemID:    cfg.GetSystemID(),
		ComponentID: cfg.GetComponentID(),
	})
	defer rdo.Close()

	var act cutdown.Actuator
	if *devMode {
		act = &cutdown.LogActuator{}
	} else {
		act, err = cutdown.OpenGPIOActuator(cutdown.GPIOConfig{
			Chip:      *gpioChip,
			Line:      uint32(*gpioLine),
			ActiveLow: *gpioActiveLow,
		})
		if err != nil {
			log.Fatalf("failed to open cutdown output: %v", err)
		}
	}
	defer act.Close()

	var (
		sinks  frame.MultiSink
		events payload.EventStore
		store  *db.DB
	)
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
		events = store
	}
	if *csvPattern != "" {
		csvw, err := csvlog.Open(fsutil.OSFileSystem{}, *csvPattern, telemetry.DefaultSchema)
		if err != nil {
			log.Fatalf("failed to open csv log: %v", err)
		}
		defer csvw.Close()
		log.Printf("logging records to %s", csvw.Name())
		sinks = append(sinks, csvw)
	}

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}
	source := sensors.NewSimulated(timeutil.RealClock{}, sensors.DefaultLaunch, *seed,
		sensors.WithGPSDropout(*gpsDropout))

	node := payload.New(rdo, source, act, sinks, events, payload.Config{
		HeartbeatInterval: cfg.GetHeartbeatInterval(),
		TransmitInterval:  cfg.GetTransmitInterval(),
		CommsPollInterval: cfg.GetCommsPollInterval(),
		MissionDuration:   cfg.GetMissionDuration(),
		CutdownHold:       cfg.GetCutdownHold(),
		MissionID:         *missionID,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// serial IO
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := radioSerial.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor radio port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// frame decoding
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rdo.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("radio decoder stopped: %v", err)
		}
		log.Print("radio routine terminated")
	}()

	// comms and sample loops
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := node.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("payload loops stopped: %v", err)
		}
		log.Printf("payload routine terminated, cutdown state %s", node.Cutdown().State())
	}()

	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := http.NewServeMux()
			radioSerial.AttachAdminRoutes(mux)
			if store != nil {
				store.AttachAdminRoutes(mux)
			}
			server := &http.Server{Addr: *listen, Handler: mux}

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
				server.Close()
			}
			log.Printf("HTTP server routine stopped")
		}()
	}

	sdnotify(daemon.SdNotifyReady)
	<-ctx.Done()
	sdnotify(daemon.SdNotifyStopping)

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// sdnotify reports service state to systemd. It is a no-op when not running
// under systemd.
func sdnotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Printf("sdnotify %q: %v", state, err)
	}
}
