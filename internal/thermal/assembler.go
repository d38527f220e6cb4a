package thermal

import (
	"context"
	"errors"
	"time"

	"github.com/mbtown01/strikepoint/internal/bus"
	"github.com/mbtown01/strikepoint/internal/clock"
	"github.com/mbtown01/strikepoint/internal/config"
	"github.com/mbtown01/strikepoint/internal/faults"
	"github.com/mbtown01/strikepoint/internal/logcore"
	"github.com/mbtown01/strikepoint/internal/metrics"
)

// Assembler is the dedicated worker that syncs onto the SPI frame
// boundary, assembles rows into frames, suppresses duplicates, and
// escalates through retry -> reboot -> surrender on persistent failure
// (spec.md §4.3). It publishes unique frames to a Mailbox.
type Assembler struct {
	dev     bus.ControlBus
	cfg     config.Thermal
	clk     clock.Source
	log     *logcore.Log
	metrics *metrics.Registry
	mailbox *Mailbox

	packet    []byte
	local     [PixelCount]float32
	prevFrame [PixelCount]float32

	staleCount uint32
	retryCount uint32
	seq        uint32

	// onPublish, when set, is invoked synchronously with every frame
	// this assembler publishes. Used by tests to observe the exact
	// sequence of published frames without racing the mailbox's
	// overwrite-on-publish semantics.
	onPublish func(Frame)
}

// NewAssembler constructs an Assembler publishing into a freshly created
// Mailbox bound to ctx.
func NewAssembler(ctx context.Context, dev bus.ControlBus, cfg config.Thermal, clk clock.Source, log *logcore.Log, reg *metrics.Registry) *Assembler {
	return &Assembler{
		dev:     dev,
		cfg:     cfg,
		clk:     clk,
		log:     log,
		metrics: reg,
		mailbox: NewMailbox(ctx),
		packet:  make([]byte, bus.PacketSize),
	}
}

// Mailbox returns the assembler's publish target.
func (a *Assembler) Mailbox() *Mailbox { return a.mailbox }

// Run executes the main loop described in spec.md §4.3 until ctx is
// cancelled or the underlying bus reports end of stream. It never
// returns a fault to the caller: every iteration either publishes a
// frame, absorbs a recoverable fault, or escalates into a reboot.
func (a *Assembler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := a.runIteration(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, faults.EndOfStream):
			return nil
		case errors.Is(err, faults.Retry):
			a.retryCount++
			a.metrics.RetryCount.Inc()
			if a.retryCount > uint32(a.cfg.RetryLimit) {
				if rebootErr := a.reboot(ctx, faults.New(faults.KindReboot, "retry count exceeded %d", a.cfg.RetryLimit)); rebootErr != nil {
					return rebootErr
				}
				continue
			}
			time.Sleep(a.cfg.RetryBackoff)
			continue
		case errors.Is(err, faults.Reboot):
			if rebootErr := a.reboot(ctx, err); rebootErr != nil {
				return rebootErr
			}
			continue
		default:
			return err
		}
	}
}

// runIteration performs one pass of sync -> assemble -> convert&dedup ->
// publish-or-stale (spec.md §4.3 steps 2-6). retry_count > 20 is checked
// by the caller (step 1) since it spans iterations.
func (a *Assembler) runIteration(ctx context.Context) error {
	if err := a.sync(ctx); err != nil {
		return err
	}
	if err := a.assembleRows(ctx); err != nil {
		return err
	}

	matches := a.convertAndCompare()
	if matches {
		a.staleCount++
		if a.staleCount == 1 {
			a.metrics.StaleEpisodes.Inc()
		}
		if a.staleCount > uint32(a.cfg.StaleLimit) {
			return faults.New(faults.KindReboot, "stale frames detected")
		}
		return nil
	}

	a.publish()
	return nil
}

// sync reads packets until one lands on a row-0 boundary (spec.md §4.3
// step 2), backing off between failed attempts and escalating to Reboot
// once the configured sync attempt limit is exceeded.
func (a *Assembler) sync(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if err := a.readPacket(ctx); err != nil {
			return err
		}
		if isSyncByte(a.packet) {
			return nil
		}
		if attempt >= a.cfg.SyncAttemptLimit {
			return faults.New(faults.KindReboot, "trouble syncing frame start")
		}
		time.Sleep(a.cfg.SyncBackoff)
	}
}

// assembleRows reads the remaining PacketsPerFrame-1 rows into a.packet,
// decoding each directly into a.local (spec.md §4.3 step 3). decodeRow
// of row 0 happens here too, since sync() already consumed that packet.
func (a *Assembler) assembleRows(ctx context.Context) error {
	decodeRow(a.packet, a.local[0:Width])

	for row := 1; row < PacketsPerFrame; row++ {
		if err := a.readPacket(ctx); err != nil {
			return err
		}
		if !isRowHeaderValid(a.packet, row) {
			return faults.New(faults.KindRetry, "bad frame received at row %d/%d", row, PacketsPerFrame)
		}
		decodeRow(a.packet, a.local[row*Width:(row+1)*Width])
	}
	return nil
}

// convertAndCompare compares a.local against prevFrame pixel-wise,
// copying local into prevFrame regardless of outcome (spec.md §4.3 step
// 4 uses exact float equality, not an epsilon comparison: the sensor
// either repeats a frame's raw bytes exactly or it doesn't).
func (a *Assembler) convertAndCompare() bool {
	matches := true
	for i := range a.local {
		if a.local[i] != a.prevFrame[i] {
			matches = false
		}
		a.prevFrame[i] = a.local[i]
	}
	return matches
}

// publish copies the decoded frame into the mailbox, advances seq, and
// clears staleCount/retryCount (spec.md §4.3 step 6).
func (a *Assembler) publish() {
	var frame Frame
	frame.TimestampNS = a.clk.NowNS()
	frame.Seq = a.seq
	frame.Pixels = a.local
	a.seq++

	a.mailbox.Publish(frame)
	a.metrics.FramesPublished.Inc()
	if a.onPublish != nil {
		a.onPublish(frame)
	}

	a.staleCount = 0
	a.retryCount = 0
}

// reboot power-cycles the sensor, logs at ERROR, and resets per-reboot
// state (spec.md §4.3's fault handling table). It returns a non-nil
// error if PowerOff or PowerOn fails (any error, unclassified), or if ctx
// was cancelled between the two.
func (a *Assembler) reboot(ctx context.Context, cause error) error {
	a.log.Log(logcore.LevelError, "assembler.go", 0, "rebooting thermal sensor: "+cause.Error())
	a.metrics.Reboots.Inc()

	if err := a.dev.PowerOff(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := a.dev.PowerOn(); err != nil {
		return err
	}

	a.prevFrame = [PixelCount]float32{}
	a.staleCount = 0
	a.retryCount = 0
	return nil
}

// readPacket reads one packet and classifies bus errors into the fault
// taxonomy: ErrEndOfStream surfaces as faults.EndOfStream; anything else
// is worker-local Retry (spec.md §7's "Io ... in worker, convert to
// Retry").
func (a *Assembler) readPacket(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := a.dev.ReadPacket(a.packet)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bus.ErrEndOfStream):
		return faults.EndOfStream
	default:
		return faults.Wrap(faults.KindRetry, err, "spi read failed")
	}
}
