// Command strikepointd runs the thermal/audio capture engine standalone,
// printing frames and strike events to stdout as they arrive. It exists
// to exercise the engine end to end against recorded fixtures (no
// hardware adapter is wired in); production embedders are expected to import the
// strikepoint package directly instead of shelling out to this binary.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/mbtown01/strikepoint"
	"github.com/mbtown01/strikepoint/internal/audio"
	"github.com/mbtown01/strikepoint/internal/bus"
)

func main() {
	app := &cli.App{
		Name:  "strikepointd",
		Usage: "thermal + acoustic strike capture engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML config override",
			},
			&cli.StringFlag{
				Name:  "log-path",
				Usage: `log sink: "stdout", "stderr", a file path, or empty for in-memory buffering`,
				Value: "stderr",
			},
			&cli.StringFlag{
				Name:  "fixture",
				Usage: "path to a recorded thermal packet stream (required; no SPI/I2C hardware adapter is wired in)",
			},
			&cli.StringFlag{
				Name:  "wav",
				Usage: "path to a mono 32-bit float WAV file to use as the audio source (required)",
			},
			&cli.StringFlag{
				Name:  "spi",
				Usage: "SPI device path for the hardware thermal adapter",
				Value: "/dev/spidev0.0",
			},
			&cli.StringFlag{
				Name:  "i2c",
				Usage: "I2C device path for the hardware thermal adapter",
				Value: "/dev/i2c-1",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "address to serve Prometheus metrics on; omit to disable",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "strikepointd:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := strikepoint.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := strikepoint.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	wavPath := c.String("wav")
	if wavPath == "" {
		return cli.Exit("--wav is required", 2)
	}
	wavFile, err := os.Open(wavPath)
	if err != nil {
		return fmt.Errorf("open wav file: %w", err)
	}
	defer wavFile.Close()

	audioSrc, err := audio.OpenWAV(wavFile)
	if err != nil {
		return fmt.Errorf("parse wav file: %w", err)
	}

	dev, err := openControlBus(c)
	if err != nil {
		return err
	}

	session, info, err := strikepoint.Open(cfg, dev, audioSrc, c.String("log-path"))
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	fmt.Printf("strikepointd: session %s started at %s\n", info.SessionID, info.StartedAt.Format(time.RFC3339))

	if addr := c.String("metrics-addr"); addr != "" {
		serveMetrics(addr, session.Metrics())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go drainEvents(ctx, session)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := session.GetFrame()
		if err != nil {
			fmt.Fprintln(os.Stderr, "strikepointd: get frame:", err)
			return nil
		}
		fmt.Printf("frame seq=%d t_ns=%d\n", frame.Seq, frame.TimestampNS)
	}
}

func openControlBus(c *cli.Context) (strikepoint.ControlBus, error) {
	if fixture := c.String("fixture"); fixture != "" {
		f, err := os.Open(fixture)
		if err != nil {
			return nil, fmt.Errorf("open fixture: %w", err)
		}
		return bus.NewFileAdapter(f), nil
	}

	// The vendor's register-level command set (AGC disable, radiometry
	// enable, FFC shutter mode, status polling) is an opaque collaborator
	// (spec.md §1) this core does not implement; running against real
	// hardware requires linking in a VendorCommands implementation for
	// the specific sensor board, which is out of scope here.
	return nil, cli.Exit("--fixture is required (no vendor driver linked in for --spi/--i2c)", 2)
}

func drainEvents(ctx context.Context, session *strikepoint.Session) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := session.GetEvents(4096)
			if err != nil {
				continue
			}
			for _, e := range events {
				fmt.Printf("strike seq=%d t_ns=%d rms=%.4f\n", e.Seq, e.TimestampNS, e.RMS)
			}
		}
	}
}

func serveMetrics(addr string, reg *strikepoint.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "strikepointd: metrics server:", err)
		}
	}()
}
