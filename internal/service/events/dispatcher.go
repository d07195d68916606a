package events

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"agricam/internal/logger"
	"agricam/internal/model"
	"agricam/internal/service/capture"
)

// Event types.
const (
	TypeCapture = "capture"
	TypeLatest  = "latest"
)

// Event is the message sent to viewers and publishers for every capture.
type Event struct {
	Type         string  `json:"type"`
	ImageID      string  `json:"image_id"`
	ProfileID    string  `json:"profile_id"`
	CameraID     string  `json:"camera_id"`
	Ts           string  `json:"ts"`
	FocusState   string  `json:"focus_state"`
	QualityScore float64 `json:"quality_score"`
	FilePath     string  `json:"file_path"`
}

// Broadcaster delivers raw messages to live viewers.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Publisher forwards events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

type Stats struct {
	Dispatched    uint64 `json:"dispatched"`
	PublishErrors uint64 `json:"publish_errors"`
}

// Dispatcher is the consumer side of the capture queue.
type Dispatcher struct {
	queue      <-chan capture.Item
	viewers    Broadcaster
	publishers []Publisher
	logger     *logger.Logger

	dispatched    atomic.Uint64
	publishErrors atomic.Uint64
}

func NewDispatcher(queue <-chan capture.Item, viewers Broadcaster, log *logger.Logger, publishers ...Publisher) *Dispatcher {
	return &Dispatcher{
		queue:      queue,
		viewers:    viewers,
		publishers: publishers,
		logger:     log,
	}
}

// Run drains the queue until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Event dispatcher started with %d publisher(s)", len(d.publishers))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Event dispatcher stopped after %d events", d.dispatched.Load())
			return nil
		case item := <-d.queue:
			d.dispatch(ctx, item)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, item capture.Item) {
	payload, err := json.Marshal(NewCaptureEvent(item))
	if err != nil {
		d.logger.Error("Failed to encode capture event: %v", err)
		return
	}

	if d.viewers != nil {
		d.viewers.Broadcast(payload)
	}
	for _, p := range d.publishers {
		if err := p.Publish(ctx, payload); err != nil {
			d.publishErrors.Add(1)
			d.logger.Warning("Failed to publish %s: %v", item.Record.ImageID, err)
		}
	}
	d.dispatched.Add(1)
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched:    d.dispatched.Load(),
		PublishErrors: d.publishErrors.Load(),
	}
}

func NewCaptureEvent(item capture.Item) Event {
	rec := item.Record
	return Event{
		Type:         TypeCapture,
		ImageID:      rec.ImageID,
		ProfileID:    rec.ProfileID,
		CameraID:     rec.CameraID,
		Ts:           rec.Ts,
		FocusState:   rec.FocusState,
		QualityScore: rec.QualityScore,
		FilePath:     item.Path,
	}
}

// NewLatestEvent describes a persisted capture sent to a viewer on connect.
func NewLatestEvent(rec *model.ImageRecord) Event {
	ev := NewCaptureEvent(capture.Item{Path: rec.FilePath, Record: *rec})
	ev.Type = TypeLatest
	return ev
}
