package threat

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// ErrMalformedLine is returned for lines that are not EVE JSON
var ErrMalformedLine = errors.New("malformed eve line")

type eveRecord struct {
	EventType string    `json:"event_type"`
	SrcIP     string    `json:"src_ip"`
	DestIP    string    `json:"dest_ip"`
	Proto     string    `json:"proto"`
	Alert     *eveAlert `json:"alert"`
}

type eveAlert struct {
	Signature string `json:"signature"`
	Severity  int    `json:"severity"`
}

// ParseEveLine decodes one Suricata EVE line. ok is false for valid lines
// that are not alerts.
func ParseEveLine(line []byte) (event models.ThreatEvent, ok bool, err error) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return models.ThreatEvent{}, false, nil
	}

	var rec eveRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return models.ThreatEvent{}, false, ErrMalformedLine
	}
	if rec.EventType != "alert" {
		return models.ThreatEvent{}, false, nil
	}

	event = models.ThreatEvent{
		SrcIP:    rec.SrcIP,
		DestIP:   rec.DestIP,
		Protocol: rec.Proto,
	}
	if rec.Alert != nil {
		event.Signature = rec.Alert.Signature
		event.Severity = rec.Alert.Severity
	}
	return event, true, nil
}
