package arbitrage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/metrics"
)

// SnapshotProvider returns the current quote snapshot, fetching when the
// cached one has expired.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (domain.QuoteSnapshot, error)
}

// ReportHook is called after every scheduled scan.
type ReportHook func(ctx context.Context, report domain.ScanReport)

// Detector runs the engine on a fixed interval and keeps the latest report.
type Detector struct {
	engine    *Engine
	quotes    SnapshotProvider
	bus       domain.SignalBus
	interval  time.Duration
	tradeSize float64
	hooks     []ReportHook
	logger    *slog.Logger

	mu     sync.RWMutex
	latest domain.ScanReport
	hasRun bool
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Engine   *Engine
	Quotes   SnapshotProvider
	Bus      domain.SignalBus // optional
	Interval time.Duration
	// TradeSize sizes the scheduled report shown on dashboards.
	TradeSize float64
	Logger    *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{
		engine:    cfg.Engine,
		quotes:    cfg.Quotes,
		bus:       cfg.Bus,
		interval:  cfg.Interval,
		tradeSize: cfg.TradeSize,
		logger:    cfg.Logger.With(slog.String("component", "arb_detector")),
	}
}

// OnReport registers a hook. Hooks run sequentially on the detector
// goroutine; register them before Run.
func (d *Detector) OnReport(h ReportHook) {
	d.hooks = append(d.hooks, h)
}

// Run scans immediately and then every interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("arb detector started", slog.Duration("interval", d.interval))
	defer d.logger.Info("arb detector stopped")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Detector) tick(ctx context.Context) {
	report, err := d.Scan(ctx, d.tradeSize, 0)
	if err != nil {
		d.logger.WarnContext(ctx, "scan failed", slog.String("error", err.Error()))
		return
	}

	d.mu.Lock()
	d.latest = report
	d.hasRun = true
	d.mu.Unlock()

	metrics.Opportunities.WithLabelValues("direct").Set(float64(len(report.Opportunities)))
	metrics.Opportunities.WithLabelValues("triangular").Set(float64(len(report.Triangular)))
	metrics.BestSpread.Set(report.Stats.BestSpreadPct)

	d.publish(ctx, report)
	for _, h := range d.hooks {
		h(ctx, report)
	}
}

// Scan runs both detectors on the current snapshot with the given sizing.
func (d *Detector) Scan(ctx context.Context, tradeSize, minSpreadPct float64) (domain.ScanReport, error) {
	start := time.Now()
	snap, err := d.quotes.Snapshot(ctx)
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("arb detector: snapshot: %w", err)
	}
	report := d.engine.BuildReport(snap, tradeSize, minSpreadPct)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	d.logger.DebugContext(ctx, "scan complete",
		slog.Int("quotes", len(snap.Quotes)),
		slog.Int("direct", len(report.Opportunities)),
		slog.Int("triangular", len(report.Triangular)),
		slog.Bool("demo", report.IsDemo),
	)
	return report, nil
}

// Find re-evaluates the current snapshot at tradeSize and returns the direct
// opportunity with the given id.
func (d *Detector) Find(ctx context.Context, id string, tradeSize float64) (domain.Opportunity, error) {
	report, err := d.Scan(ctx, tradeSize, 0)
	if err != nil {
		return domain.Opportunity{}, err
	}
	for _, o := range report.Opportunities {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Opportunity{}, fmt.Errorf("opportunity %q: %w", id, domain.ErrNotFound)
}

// Latest returns the most recent scheduled report and whether one exists.
func (d *Detector) Latest() (domain.ScanReport, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.hasRun
}

type scanEvent struct {
	Event         string    `json:"event"`
	Opportunities int       `json:"opportunities"`
	Triangular    int       `json:"triangular"`
	BestSpread    float64   `json:"best_spread"`
	BestNet       float64   `json:"best_net"`
	IsDemo        bool      `json:"is_demo"`
	Timestamp     time.Time `json:"timestamp"`
}

func (d *Detector) publish(ctx context.Context, r domain.ScanReport) {
	if d.bus == nil {
		return
	}
	ev := scanEvent{
		Event:         "scan",
		Opportunities: len(r.Opportunities),
		Triangular:    len(r.Triangular),
		BestSpread:    r.Stats.BestSpreadPct,
		IsDemo:        r.IsDemo,
		Timestamp:     r.Stats.LastUpdate,
	}
	if len(r.Opportunities) > 0 {
		ev.BestNet = r.Opportunities[0].NetProfit
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := d.bus.Publish(ctx, domain.ChannelScan, payload); err != nil {
		d.logger.WarnContext(ctx, "publish scan event failed", slog.String("error", err.Error()))
	}
}
