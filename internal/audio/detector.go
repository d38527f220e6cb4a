package audio

import (
	"context"
	"errors"
	"math"

	"github.com/mbtown01/strikepoint/internal/config"
	"github.com/mbtown01/strikepoint/internal/metrics"
)

// Detector is the dedicated worker that filters incoming audio blocks
// and emits strike events on transient detection (spec.md §4.4).
type Detector struct {
	src     Source
	cfg     config.Audio
	queue   *Queue
	metrics *metrics.Registry

	filter *Highpass
	buf    []float32
	bufHP  []float32

	lastHit uint64
	seq     uint32
}

// NewDetector builds a Detector reading from src with the given
// config, publishing into a freshly created Queue.
func NewDetector(src Source, cfg config.Audio, reg *metrics.Registry) *Detector {
	return &Detector{
		src:     src,
		cfg:     cfg,
		queue:   NewQueue(cfg.QueueSize),
		metrics: reg,
		filter:  NewHighpass(cfg.CutoffHz, src.SampleRate()),
		buf:     make([]float32, cfg.BlockSize),
		bufHP:   make([]float32, cfg.BlockSize),
	}
}

// Queue returns the detector's event sink.
func (d *Detector) Queue() *Queue { return d.queue }

// Run executes the main loop described in spec.md §4.4 until ctx is
// cancelled or the source reports end of stream. Cancellation is only
// observed between blocks: an in-flight src.Read is allowed to complete
// (spec.md §5's "in-flight SPI reads are allowed to complete" applies
// symmetrically to the audio source's read).
func (d *Detector) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.src.Read(d.buf); err != nil {
			if errors.Is(err, ErrEndOfStream) {
				return nil
			}
			return err
		}

		d.filter.Apply(d.bufHP, d.buf)

		var sumsq float64
		for _, v := range d.bufHP {
			sumsq += float64(v) * float64(v)
		}
		rms := float32(math.Sqrt(sumsq/float64(len(d.bufHP)) + 1e-12))

		t := d.src.NowNS()
		dtSeconds := math.Inf(1)
		if d.lastHit != 0 {
			dtSeconds = float64(t-d.lastHit) / 1e9
		}

		if dtSeconds >= d.cfg.RefractoryS && rms > d.cfg.MinThreshold {
			d.lastHit = t
			if d.queue.Push(StrikeEvent{TimestampNS: t, Seq: d.seq, RMS: rms}) {
				d.metrics.EventsDropped.Inc()
			}
			d.seq++
			d.metrics.EventsEmitted.Inc()
			d.metrics.QueueDepth.Set(float64(d.queue.Len()))
		}
	}
}
