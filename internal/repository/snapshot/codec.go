package snapshot

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/home-guard/internal/domain/sensor"
)

// Field names of the encoded snapshot.
const (
	FieldPresence      = "presence"
	FieldDetection     = "detection"
	FieldUpdatedAt     = "updated_at"
	FieldAlerts        = "alerts"
	FieldLastAlertAt   = "last_alert_at"
	FieldLastImagePath = "last_image_path"
	FieldRestarts      = "restarts"
)

var (
	// errNilSnapshot is returned when a nil snapshot is encoded.
	errNilSnapshot = errors.New("snapshot is not set")
	// errBadState is returned when a stored state name is not recognized.
	errBadState = errors.New("unknown state name")
)

// ToStruct encodes the snapshot as a protobuf Struct.
func ToStruct(s *sensor.Snapshot) (*structpb.Struct, error) {
	if s == nil {
		return nil, errNilSnapshot
	}

	restarts := make(map[string]any, len(s.Restarts))
	for kind, n := range s.Restarts {
		restarts[kind.String()] = float64(n)
	}

	fields := map[string]any{
		FieldPresence:      s.Presence.String(),
		FieldDetection:     s.Detection.String(),
		FieldUpdatedAt:     formatTime(s.UpdatedAt),
		FieldAlerts:        float64(s.Alerts),
		FieldLastAlertAt:   formatTime(s.LastAlertAt),
		FieldLastImagePath: s.LastImagePath,
		FieldRestarts:      restarts,
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	return st, nil
}

// FromStruct decodes a snapshot previously produced by ToStruct.
// Missing fields keep their zero values.
func FromStruct(st *structpb.Struct) (*sensor.Snapshot, error) {
	var (
		fields = st.GetFields()
		s      = &sensor.Snapshot{Restarts: make(map[sensor.Kind]uint64)}
		ok     bool
	)

	if v, found := fields[FieldPresence]; found {
		if s.Presence, ok = sensor.ParsePresenceState(v.GetStringValue()); !ok {
			return nil, fmt.Errorf("%w: presence %q", errBadState, v.GetStringValue())
		}
	}

	if v, found := fields[FieldDetection]; found {
		if s.Detection, ok = sensor.ParseDetectionState(v.GetStringValue()); !ok {
			return nil, fmt.Errorf("%w: detection %q", errBadState, v.GetStringValue())
		}
	}

	var err error

	if s.UpdatedAt, err = parseTime(fields[FieldUpdatedAt].GetStringValue()); err != nil {
		return nil, fmt.Errorf("decode %s: %w", FieldUpdatedAt, err)
	}

	if s.LastAlertAt, err = parseTime(fields[FieldLastAlertAt].GetStringValue()); err != nil {
		return nil, fmt.Errorf("decode %s: %w", FieldLastAlertAt, err)
	}

	s.Alerts = uint64(fields[FieldAlerts].GetNumberValue())
	s.LastImagePath = fields[FieldLastImagePath].GetStringValue()

	for name, v := range fields[FieldRestarts].GetStructValue().GetFields() {
		switch name {
		case sensor.KindPresence.String():
			s.Restarts[sensor.KindPresence] = uint64(v.GetNumberValue())
		case sensor.KindDetection.String():
			s.Restarts[sensor.KindDetection] = uint64(v.GetNumberValue())
		}
	}

	return s, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339Nano, s)
}
