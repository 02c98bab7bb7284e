package events

// Event kinds broadcast over the lifecycle channel
const (
	KindStreamStarted = "stream_started"
	KindStreamStopped = "stream_stopped"
)

// StreamEvent is a lifecycle notification for one camera stream
type StreamEvent struct {
	Kind      string `json:"event"`
	CameraID  string `json:"cameraId"`
	StreamID  string `json:"streamId"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Notifier receives lifecycle notifications for downstream broadcast.
// Publish is fire-and-forget: implementations must never block the caller,
// and delivery failures are the implementation's problem, not the
// publisher's.
type Notifier interface {
	Publish(event StreamEvent)
}

// NopNotifier discards all events
type NopNotifier struct{}

func (NopNotifier) Publish(StreamEvent) {}
