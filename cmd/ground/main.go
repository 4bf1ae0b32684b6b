// Command ground runs the ground station: it receives telemetry and
// heartbeats from the balloon over the radio, stores records, and serves the
// operator API including the cutdown command.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"

	"github.com/banshee-data/skylink/internal/api"
	"github.com/banshee-data/skylink/internal/config"
	"github.com/banshee-data/skylink/internal/csvlog"
	"github.com/banshee-data/skylink/internal/db"
	"github.com/banshee-data/skylink/internal/frame"
	"github.com/banshee-data/skylink/internal/fsutil"
	"github.com/banshee-data/skylink/internal/ground"
	"github.com/banshee-data/skylink/internal/radio"
	"github.com/banshee-data/skylink/internal/serialmux"
	"github.com/banshee-data/skylink/internal/telemetry"
	"github.com/banshee-data/skylink/internal/timeutil"
	"github.com/banshee-data/skylink/internal/units"
	"github.com/banshee-data/skylink/internal/version"
)

var (
	devMode      = flag.Bool("dev", false, "Run in dev mode with a simulated payload on a mock radio")
	disableRadio = flag.Bool("disable-radio", false, "Run without a radio (API and stored data only)")
	listen       = flag.String("listen", ":8080", "Listen address")
	port         = flag.String("port", "/dev/ttyUSB0", "Radio serial port (ignored in dev mode)")
	dbPath       = flag.String("db", db.DefaultPath, "Path to the sqlite database")
	csvPattern   = flag.String("csv", csvlog.DefaultPattern, "CSV log filename pattern, {} is replaced by the next free number (empty disables)")
	configPath   = flag.String("config", "", "Link config JSON (defaults when empty)")
	speedUnits   = flag.String("units", units.MPS, "Default speed units for the API ("+units.GetValidUnitsString()+")")
	altUnits     = flag.String("alt-units", units.Metres, "Default altitude units for the API ("+units.GetValidAltitudeUnitsString()+")")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("ground"))
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid -units %q, must be one of: %s", *speedUnits, units.GetValidUnitsString())
	}
	if !units.IsValidAltitude(*altUnits) {
		log.Fatalf("invalid -alt-units %q, must be one of: %s", *altUnits, units.GetValidAltitudeUnitsString())
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	framer, framerOpt := radio.NewFramer()
	var radioSerial serialmux.SerialMuxInterface
	switch {
	case *disableRadio:
		radioSerial = serialmux.NewDisabledSerialMux()
	case *devMode:
		feed := newSimulatedPayload(timeutil.RealClock{}, uint64(time.Now().UnixNano()), int(cfg.GetTransmitInterval()/cfg.GetHeartbeatInterval()))
		radioSerial = serialmux.NewMockSerialMux(cfg.GetHeartbeatInterval(), feed.Next, framerOpt)
	default:
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

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	sinks := frame.MultiSink{store}
	if *csvPattern != "" {
		csvw, err := csvlog.Open(fsutil.OSFileSystem{}, *csvPattern, telemetry.DefaultSchema)
		if err != nil {
			log.Fatalf("failed to open csv log: %v", err)
		}
		defer csvw.Close()
		log.Printf("logging records to %s", csvw.Name())
		sinks = append(sinks, csvw)
	}

	station, err := ground.New(rdo, sinks, store, ground.Config{
		PollInterval:     cfg.GetReceivePollInterval(),
		HeartbeatTimeout: cfg.GetHeartbeatTimeout(),
		WarningInterval:  cfg.GetHeartbeatWarningInterval(),
		Strict:           cfg.GetStrictReassembly(),
	})
	if err != nil {
		log.Fatalf("failed to create ground station: %v", err)
	}

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

	// receive loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := station.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("receive loop stopped: %v", err)
		}
		log.Print("receive routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(station, store, *speedUnits, *altUnits).ServeMux()
		radioSerial.AttachAdminRoutes(mux)
		store.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("serving ground API on %s", *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	sdnotify(daemon.SdNotifyReady)
	<-ctx.Done()
	sdnotify(daemon.SdNotifyStopping)

	wg.Wait()
	if n, err := store.TelemetryCount(); err == nil {
		fmt.Fprintf(os.Stderr, "%d records stored in %s\n", n, *dbPath)
	}
	log.Printf("Graceful shutdown complete")
}

// sdnotify reports service state to systemd. It is a no-op when not running
// under systemd.
func sdnotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Printf("sdnotify %q: %v", state, err)
	}
}
