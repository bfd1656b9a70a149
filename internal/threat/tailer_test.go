package threat

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mskumargvd/arushi-cloud/internal/logging"
	"github.com/mskumargvd/arushi-cloud/internal/metrics"
	"github.com/mskumargvd/arushi-cloud/internal/protocol"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

type fakeEmitter struct {
	connected atomic.Bool
	failing   atomic.Bool

	mu     sync.Mutex
	events []models.ThreatEvent
}

func (f *fakeEmitter) Connected() bool {
	return f.connected.Load()
}

func (f *fakeEmitter) Emit(ctx context.Context, msg *protocol.Message) error {
	if f.failing.Load() {
		return errors.New("write: broken pipe")
	}
	var event models.ThreatEvent
	if err := msg.DecodePayload(&event); err != nil {
		return err
	}
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return nil
}

func (f *fakeEmitter) Events() []models.ThreatEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ThreatEvent(nil), f.events...)
}

func connectedEmitter() *fakeEmitter {
	e := &fakeEmitter{}
	e.connected.Store(true)
	return e
}

func startTailer(t *testing.T, tl *Tailer) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tl.Run(ctx) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("tailer did not stop")
			return nil
		}
	}
}

func TestParseEveLine(t *testing.T) {
	alert := `{"timestamp":"2026-03-01T12:00:00.000000+0000","event_type":"alert","src_ip":"198.51.100.7","src_port":51514,"dest_ip":"10.0.0.5","dest_port":22,"proto":"TCP","alert":{"action":"allowed","signature_id":2001219,"signature":"ET SCAN Potential SSH Scan","category":"Attempted Information Leak","severity":2}}`

	event, ok, err := ParseEveLine([]byte(alert))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ThreatEvent{
		SrcIP:     "198.51.100.7",
		DestIP:    "10.0.0.5",
		Protocol:  "TCP",
		Signature: "ET SCAN Potential SSH Scan",
		Severity:  2,
	}, event)

	_, ok, err = ParseEveLine([]byte(`{"event_type":"flow","src_ip":"1.2.3.4"}`))
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = ParseEveLine([]byte("   "))
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = ParseEveLine([]byte(`{"event_type":"alert",`))
	assert.ErrorIs(t, err, ErrMalformedLine)
}

func TestScaleLevel(t *testing.T) {
	assert.Equal(t, LevelHigh, DefaultScale.Level(1))
	assert.Equal(t, LevelMedium, DefaultScale.Level(2))
	assert.Equal(t, LevelLow, DefaultScale.Level(3))
	assert.Equal(t, LevelHigh, DefaultScale.Level(0), "clamped to min")
	assert.Equal(t, LevelLow, DefaultScale.Level(9), "clamped to max")

	ascending := Scale{Min: 1, Max: 10}
	assert.Equal(t, LevelLow, ascending.Level(1))
	assert.Equal(t, LevelMedium, ascending.Level(5))
	assert.Equal(t, LevelHigh, ascending.Level(10))

	assert.Equal(t, LevelHigh, Scale{Min: 3, Max: 3}.Level(3))
}

func TestModeSelection(t *testing.T) {
	dir := t.TempDir()
	eve := filepath.Join(dir, "eve.json")

	tl := NewTailer(Config{EvePath: eve}, connectedEmitter(), nil, logging.Discard())
	assert.Equal(t, ModeSynthetic, tl.Mode())

	require.NoError(t, os.WriteFile(eve, nil, 0o644))
	tl = NewTailer(Config{EvePath: eve}, connectedEmitter(), nil, logging.Discard())
	assert.Equal(t, ModeLive, tl.Mode())
}

func TestSyntheticIntervalsWithinBounds(t *testing.T) {
	tl := NewTailer(Config{EvePath: filepath.Join(t.TempDir(), "missing.json"), MinInterval: 2 * time.Second, MaxInterval: 8 * time.Second},
		connectedEmitter(), nil, logging.Discard())
	tl.rng = rand.New(rand.NewSource(42))

	var sawLow, sawHigh bool
	for i := 0; i < 5000; i++ {
		d := tl.nextInterval()
		require.GreaterOrEqual(t, d, 2*time.Second)
		require.LessOrEqual(t, d, 8*time.Second)
		sawLow = sawLow || d < 3*time.Second
		sawHigh = sawHigh || d > 7*time.Second
	}
	assert.True(t, sawLow && sawHigh, "intervals should spread across the range")
}

func TestSyntheticEvents(t *testing.T) {
	tl := NewTailer(Config{
		EvePath: filepath.Join(t.TempDir(), "missing.json"),
		Scale:   Scale{Min: 1, Max: 3, LowerIsMoreSevere: true},
	}, connectedEmitter(), nil, logging.Discard())
	tl.rng = rand.New(rand.NewSource(7))

	severities := make(map[int]bool)
	for i := 0; i < 500; i++ {
		event := tl.synthesize()
		ip := net.ParseIP(event.SrcIP)
		require.NotNil(t, ip, event.SrcIP)
		require.NotNil(t, ip.To4())
		assert.Equal(t, SyntheticDestination, event.DestIP)
		assert.Contains(t, signatureCatalog, event.Signature)
		assert.Contains(t, protocols, event.Protocol)
		require.GreaterOrEqual(t, event.Severity, 1)
		require.LessOrEqual(t, event.Severity, 3)
		severities[event.Severity] = true
	}
	assert.Len(t, severities, 3)
}

func TestSyntheticRunEmitsOnlyWhileConnected(t *testing.T) {
	emitter := &fakeEmitter{}
	m := metrics.NewMetrics()
	tl := NewTailer(Config{
		EvePath:     filepath.Join(t.TempDir(), "missing.json"),
		MinInterval: time.Millisecond,
		MaxInterval: 3 * time.Millisecond,
	}, emitter, m, logging.Discard())
	stop := startTailer(t, tl)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, emitter.Events(), "nothing is sent or queued while disconnected")

	emitter.connected.Store(true)
	assert.Eventually(t, func() bool { return len(emitter.Events()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	for _, e := range emitter.Events() {
		assert.NotEmpty(t, e.Level)
	}
}

func TestEmitErrorsAreSwallowed(t *testing.T) {
	emitter := connectedEmitter()
	emitter.failing.Store(true)
	tl := NewTailer(Config{
		EvePath:     filepath.Join(t.TempDir(), "missing.json"),
		MinInterval: time.Millisecond,
		MaxInterval: time.Millisecond,
	}, emitter, nil, logging.Discard())
	stop := startTailer(t, tl)

	time.Sleep(30 * time.Millisecond)
	emitter.failing.Store(false)
	assert.Eventually(t, func() bool { return len(emitter.Events()) > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, stop())
}

func TestLiveModeForwardsAppendedAlerts(t *testing.T) {
	eve := filepath.Join(t.TempDir(), "eve.json")
	// History written before startup is not replayed
	require.NoError(t, os.WriteFile(eve, []byte(`{"event_type":"alert","src_ip":"192.0.2.1","alert":{"signature":"old","severity":1}}`+"\n"), 0o644))

	emitter := connectedEmitter()
	tl := NewTailer(Config{EvePath: eve, Poll: true}, emitter, nil, logging.Discard())
	require.Equal(t, ModeLive, tl.Mode())
	stop := startTailer(t, tl)

	f, err := os.OpenFile(eve, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()

	lines := []string{
		`{"event_type":"dns","src_ip":"192.0.2.2"}`,
		`not json at all`,
		`{"event_type":"alert","src_ip":"203.0.113.4","dest_ip":"10.0.0.5","proto":"UDP","alert":{"signature":"ET DNS Query to a Suspicious Domain","severity":3}}`,
	}

	// The tailer may still be seeking to the end, so keep appending until it reports
	assert.Eventually(t, func() bool {
		for _, l := range lines {
			_, _ = f.WriteString(l + "\n")
		}
		return len(emitter.Events()) > 0
	}, 5*time.Second, 300*time.Millisecond)
	require.NoError(t, stop())

	for _, e := range emitter.Events() {
		assert.Equal(t, "203.0.113.4", e.SrcIP)
		assert.Equal(t, "ET DNS Query to a Suspicious Domain", e.Signature)
		assert.Equal(t, LevelLow, e.Level)
	}
}

func TestLiveModeSurvivesRotation(t *testing.T) {
	tests := []struct {
		name string
		poll bool
	}{
		{"notify", false},
		{"poll", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eve := filepath.Join(t.TempDir(), "eve.json")
			require.NoError(t, os.WriteFile(eve, nil, 0o644))

			emitter := connectedEmitter()
			tl := NewTailer(Config{EvePath: eve, Poll: tt.poll}, emitter, nil, logging.Discard())
			require.Equal(t, ModeLive, tl.Mode())
			stop := startTailer(t, tl)

			appendAlert := func(src string) {
				// Runs inside Eventually, so failures just retry on the next tick
				f, err := os.OpenFile(eve, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					return
				}
				defer f.Close()
				_, _ = f.WriteString(`{"event_type":"alert","src_ip":"` + src + `","alert":{"signature":"ET SCAN Potential SSH Scan","severity":2}}` + "\n")
			}
			seen := func(src string) bool {
				for _, e := range emitter.Events() {
					if e.SrcIP == src {
						return true
					}
				}
				return false
			}

			require.Eventually(t, func() bool {
				appendAlert("198.51.100.1")
				return seen("198.51.100.1")
			}, 5*time.Second, 300*time.Millisecond)

			require.NoError(t, os.Rename(eve, eve+".1"))
			require.NoError(t, os.WriteFile(eve, nil, 0o644))

			assert.Eventually(t, func() bool {
				appendAlert("198.51.100.2")
				return seen("198.51.100.2")
			}, 10*time.Second, 300*time.Millisecond, "alerts written after rotation are forwarded")
			require.NoError(t, stop())
		})
	}
}
