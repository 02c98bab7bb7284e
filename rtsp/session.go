package rtsp

import (
	"strings"
	"time"
)

// Status represents the connection state of an RTSP session
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusPlaying
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusPlaying:
		return "playing"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is a single decoded media unit from the camera
type Frame struct {
	Data       []byte
	Time       time.Duration // Presentation time relative to stream start
	IsKeyFrame bool
	MediaIndex int8 // Track index within the session (video/audio)
}

// Config holds the parameters needed to open a session to one camera
type Config struct {
	URL         string
	Username    string
	Password    string
	Timeout     time.Duration
	EnableAudio bool
}

// SourceURL returns the RTSP URL with credentials embedded, suitable for
// handing to FFmpeg or a dialer. URLs that already carry userinfo are
// returned unchanged.
func (c Config) SourceURL() string {
	if c.Username == "" || c.Password == "" {
		return c.URL
	}
	if strings.Contains(c.URL, "@") {
		return c.URL
	}
	idx := strings.Index(c.URL, "://")
	if idx < 0 {
		return c.URL
	}
	return c.URL[:idx+3] + c.Username + ":" + c.Password + "@" + c.URL[idx+3:]
}

// Session is one live RTSP engagement with a camera. Frames are delivered
// only while the session is playing; the channel closes when the read loop
// ends for any reason. A session cannot be restarted after Close — open a
// new one instead.
type Session interface {
	Connect() error
	Play() error
	Stop() error
	Disconnect() error
	Close() error
	Status() Status
	Frames() <-chan Frame
}

// Dialer creates sessions; swapped for a fake in tests
type Dialer func(Config) Session
