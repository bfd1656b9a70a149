package threat

// Severity levels
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// Scale maps numeric IDS severities to levels. Suricata numbers its
// priorities so that 1 is the most severe; LowerIsMoreSevere selects that
// direction.
type Scale struct {
	Min               int
	Max               int
	LowerIsMoreSevere bool
}

// DefaultScale is the Suricata 1..3 priority scale
var DefaultScale = Scale{Min: 1, Max: 3, LowerIsMoreSevere: true}

// Level classifies severity. Values outside [Min, Max] are clamped.
func (s Scale) Level(severity int) string {
	if s.Max <= s.Min {
		return LevelHigh
	}
	if severity < s.Min {
		severity = s.Min
	}
	if severity > s.Max {
		severity = s.Max
	}

	// 0 is the mildest and 1 the worst end of the scale
	pos := float64(severity-s.Min) / float64(s.Max-s.Min)
	if s.LowerIsMoreSevere {
		pos = 1 - pos
	}

	switch {
	case pos >= 2.0/3.0:
		return LevelHigh
	case pos >= 1.0/3.0:
		return LevelMedium
	default:
		return LevelLow
	}
}
