// Package threat forwards IDS alerts to the control plane. When the Suricata
// EVE log is present it is followed live; otherwise synthetic alerts are
// generated so the dashboard pipeline can be exercised on hosts without an IDS.
package threat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/nxadm/tail"

	"github.com/mskumargvd/arushi-cloud/internal/metrics"
	"github.com/mskumargvd/arushi-cloud/internal/protocol"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
	"github.com/mskumargvd/arushi-cloud/pkg/utils"
)

// Modes
const (
	ModeLive      = "live"
	ModeSynthetic = "synthetic"
)

// SyntheticDestination is the fixed target of generated alerts
const SyntheticDestination = "10.0.0.1"

// DefaultEvePath is where Suricata writes its EVE log
const DefaultEvePath = "/var/log/suricata/eve.json"

var signatureCatalog = []string{
	"ET SCAN Nmap Scripting Engine User-Agent Detected",
	"ET SCAN Potential SSH Scan",
	"ET EXPLOIT Possible SQL Injection Attempt",
	"ET WEB_SERVER Directory Traversal Attempt",
	"ET POLICY Outbound Telnet Connection",
	"ET MALWARE Possible Botnet C2 Beacon",
	"ET DOS Possible SYN Flood",
}

var protocols = []string{"TCP", "UDP", "ICMP"}

// Emitter is the part of the transport the tailer needs
type Emitter interface {
	Connected() bool
	Emit(ctx context.Context, msg *protocol.Message) error
}

// Config configures a Tailer
type Config struct {
	EvePath     string
	Poll        bool
	MinInterval time.Duration
	MaxInterval time.Duration
	Scale       Scale
}

// Tailer emits threat_alert events from one source, chosen at construction
type Tailer struct {
	config  Config
	mode    string
	emitter Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger

	// used only by the Run goroutine
	rng *rand.Rand
}

// NewTailer picks live mode when the EVE log exists and synthesis otherwise
func NewTailer(config Config, emitter Emitter, m *metrics.Metrics, logger *slog.Logger) *Tailer {
	if config.EvePath == "" {
		config.EvePath = DefaultEvePath
	}
	if config.MinInterval <= 0 {
		config.MinInterval = 2 * time.Second
	}
	if config.MaxInterval < config.MinInterval {
		config.MaxInterval = config.MinInterval
	}
	if config.Scale == (Scale{}) {
		config.Scale = DefaultScale
	}

	mode := ModeSynthetic
	if utils.FileExists(config.EvePath) {
		mode = ModeLive
	}

	return &Tailer{
		config:  config,
		mode:    mode,
		emitter: emitter,
		metrics: m,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Mode returns ModeLive or ModeSynthetic
func (t *Tailer) Mode() string {
	return t.mode
}

// Run blocks until ctx is cancelled or the live source fails
func (t *Tailer) Run(ctx context.Context) error {
	t.logger.Info("Threat tailer started", "mode", t.mode, "path", t.config.EvePath)
	if t.mode == ModeLive {
		return t.runLive(ctx)
	}
	return t.runSynthetic(ctx)
}

func (t *Tailer) runLive(ctx context.Context) error {
	tf, err := tail.TailFile(t.config.EvePath, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      t.config.Poll,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to follow %s: %w", t.config.EvePath, err)
	}
	defer tf.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = tf.Stop()
			return nil
		case line, ok := <-tf.Lines:
			if !ok {
				if err := tf.Err(); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("eve tail stopped: %w", err)
				}
				return nil
			}
			if line.Err != nil {
				t.logger.Debug("Eve read error", "error", line.Err)
				continue
			}

			event, ok, err := ParseEveLine([]byte(line.Text))
			if err != nil {
				t.logger.Debug("Skipping malformed eve line", "line", utils.TruncateString(line.Text, 120))
				continue
			}
			if !ok {
				continue
			}
			t.forward(ctx, event)
		}
	}
}

func (t *Tailer) runSynthetic(ctx context.Context) error {
	for {
		timer := time.NewTimer(t.nextInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		t.forward(ctx, t.synthesize())
	}
}

// nextInterval is uniform over [MinInterval, MaxInterval]
func (t *Tailer) nextInterval() time.Duration {
	span := t.config.MaxInterval - t.config.MinInterval
	if span <= 0 {
		return t.config.MinInterval
	}
	return t.config.MinInterval + time.Duration(t.rng.Int63n(int64(span)+1))
}

func (t *Tailer) synthesize() models.ThreatEvent {
	src := net.IPv4(
		byte(1+t.rng.Intn(254)),
		byte(1+t.rng.Intn(254)),
		byte(1+t.rng.Intn(254)),
		byte(1+t.rng.Intn(254)),
	)

	scale := t.config.Scale
	severity := scale.Min
	if scale.Max > scale.Min {
		severity += t.rng.Intn(scale.Max - scale.Min + 1)
	}

	return models.ThreatEvent{
		SrcIP:     src.String(),
		DestIP:    SyntheticDestination,
		Protocol:  protocols[t.rng.Intn(len(protocols))],
		Signature: signatureCatalog[t.rng.Intn(len(signatureCatalog))],
		Severity:  severity,
	}
}

// forward is fire-and-forget: nothing is buffered or retried
func (t *Tailer) forward(ctx context.Context, event models.ThreatEvent) {
	if !t.emitter.Connected() {
		return
	}
	event.Level = t.config.Scale.Level(event.Severity)

	msg, err := protocol.NewThreatAlert(event)
	if err != nil {
		t.logger.Debug("Failed to encode threat alert", "error", err)
		return
	}
	if err := t.emitter.Emit(ctx, msg); err != nil {
		t.logger.Debug("Dropped threat alert", "signature", event.Signature, "error", err)
		return
	}
	t.metrics.IncrementThreatAlerts(t.mode)
}
