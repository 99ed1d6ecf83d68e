package types

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// Well-known class labels. Upstream detectors report free-text labels; these
// two drive the alert flags.
const (
	ClassFire    = "FIRE"
	ClassSmoke   = "SMOKE"
	ClassUnknown = "UNKNOWN"
)

// DetectionEvent is one normalized detection record. It is the wire format of
// the live feed and the row shape of the detection log.
type DetectionEvent struct {
	ID         int64     `json:"id,omitempty"` // assigned by the store on insert
	Timestamp  time.Time `json:"timestamp"`
	AIServerID string    `json:"ai_server_id"`
	ClassName  string    `json:"class_name"`
	ObjectType string    `json:"object_type"` // same value as ClassName, kept for newer viewers
	Confidence float64   `json:"confidence"`

	IsFireDetected  bool `json:"is_fire_detected"`
	IsSmokeDetected bool `json:"is_smoke_detected"`

	// Normalized bounding box (center + extent, each in [0,1]); nil when the
	// upstream did not report usable geometry.
	LocationX *float64 `json:"location_x"`
	LocationY *float64 `json:"location_y"`
	BoxWidth  *float64 `json:"box_width"`
	BoxHeight *float64 `json:"box_height"`
}

// DetectionPayload mirrors the JSON accepted on the ingest boundary. Field
// aliases (object_type/class_name, box_width/box_w) exist because different
// detector builds use different names.
type DetectionPayload struct {
	AIServerID string    `json:"ai_server_id"`
	ClassName  string    `json:"class_name"`
	ObjectType string    `json:"object_type"`
	Confidence FlexFloat `json:"confidence"`

	IsFireDetected  *bool `json:"is_fire_detected"`
	IsSmokeDetected *bool `json:"is_smoke_detected"`

	LocationX FlexFloat `json:"location_x"`
	LocationY FlexFloat `json:"location_y"`
	BoxWidth  FlexFloat `json:"box_width"`
	BoxW      FlexFloat `json:"box_w"`
	BoxHeight FlexFloat `json:"box_height"`
	BoxH      FlexFloat `json:"box_h"`

	Timestamp string `json:"timestamp"`
}

// FlexFloat accepts a JSON number, a numeric string, or null. Unparseable
// values leave Valid false instead of failing the whole payload; a detector
// with a formatting bug must not lose its safety signal.
type FlexFloat struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements lenient numeric decoding. It never returns an
// error for bad numeric content, only for malformed JSON handed to it.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	f.Value, f.Valid = 0, false

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	f.Value = v
	f.Valid = true
	return nil
}

// Ptr returns the value as a nullable pointer, nil when absent.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// Timestamp layouts tried in order. Upstreams send either full RFC 3339 or a
// zone-less ISO-8601 local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Normalize converts a raw payload into a DetectionEvent.
//
// Rules: the class label is upper-cased (UNKNOWN when missing), the fire and
// smoke flags are the explicit flag OR-ed with a label match (a label mismatch
// never clears an explicit true), optional numerics degrade to absent, and a
// missing or unparseable timestamp falls back to now.
func Normalize(p DetectionPayload, defaultSource string, now time.Time) DetectionEvent {
	class := p.ObjectType
	if class == "" {
		class = p.ClassName
	}
	if class == "" {
		class = ClassUnknown
	}
	class = strings.ToUpper(strings.TrimSpace(class))

	source := p.AIServerID
	if source == "" {
		source = defaultSource
	}

	ts := now
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, p.Timestamp, time.Local); err == nil {
			ts = parsed
			break
		}
	}

	boxW := p.BoxWidth
	if !boxW.Valid {
		boxW = p.BoxW
	}
	boxH := p.BoxHeight
	if !boxH.Valid {
		boxH = p.BoxH
	}

	return DetectionEvent{
		Timestamp:       ts,
		AIServerID:      source,
		ClassName:       class,
		ObjectType:      class,
		Confidence:      p.Confidence.Value,
		IsFireDetected:  boolOr(p.IsFireDetected) || class == ClassFire,
		IsSmokeDetected: boolOr(p.IsSmokeDetected) || class == ClassSmoke,
		LocationX:       p.LocationX.Ptr(),
		LocationY:       p.LocationY.Ptr(),
		BoxWidth:        boxW.Ptr(),
		BoxHeight:       boxH.Ptr(),
	}
}

func boolOr(b *bool) bool {
	return b != nil && *b
}
