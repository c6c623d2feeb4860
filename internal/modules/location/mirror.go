// README: Best-effort mirrors of recorded positions (Firebase RTDB, event stream).
package location

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"fieldops/internal/events"
)

// Mirror receives every recorded location. Failures never fail the recording.
type Mirror interface {
	Mirror(ctx context.Context, l *TechnicianLocation) error
}

// rtdbEntry is the shape stored under /technician_locations/{tenant}/{user}; mobile
// dispatcher views listen on that node directly.
type rtdbEntry struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Status    string   `json:"status"`
	Timestamp int64    `json:"timestamp"`
}

type valueSetter interface {
	Set(ctx context.Context, v interface{}) error
}

// RTDBMirror writes the latest position of each technician to Firebase Realtime Database.
type RTDBMirror struct {
	ref func(path string) valueSetter
}

func NewRTDBMirror(client *db.Client) *RTDBMirror {
	return &RTDBMirror{ref: func(path string) valueSetter { return client.NewRef(path) }}
}

func (m *RTDBMirror) Mirror(ctx context.Context, l *TechnicianLocation) error {
	path := fmt.Sprintf("technician_locations/%s/%s", l.TenantID, l.UserID)
	if err := m.ref(path).Set(ctx, rtdbEntry{
		Lat:       l.Lat,
		Lng:       l.Lng,
		Heading:   l.Heading,
		Speed:     l.Speed,
		Status:    string(l.Status),
		Timestamp: l.RecordedAt.UnixMilli(),
	}); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// StreamMirror publishes each location as a technician.location event keyed by technician.
type StreamMirror struct {
	publisher events.Publisher
}

func NewStreamMirror(p events.Publisher) *StreamMirror {
	return &StreamMirror{publisher: p}
}

func (m *StreamMirror) Mirror(ctx context.Context, l *TechnicianLocation) error {
	return m.publisher.Publish(ctx, events.New(events.TechnicianLocation, l.TenantID, string(l.UserID), l))
}
