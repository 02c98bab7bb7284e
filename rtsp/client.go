package rtsp

import (
	"fmt"
	"log"
	"sync"

	"github.com/nareix/joy4/format/rtsp"
)

// client implements Session on top of the joy4 RTSP client
type client struct {
	cfg Config

	mu      sync.Mutex
	conn    *rtsp.Client
	status  Status
	frames  chan Frame
	done    chan struct{}
	playing bool
	closed  bool
}

// NewSession opens an RTSP session backed by the joy4 client
func NewSession(cfg Config) Session {
	return &client{
		cfg:    cfg,
		status: StatusDisconnected,
		frames: make(chan Frame),
		done:   make(chan struct{}),
	}
}

// signalDone unblocks the read loop; callers hold c.mu
func (c *client) signalDone() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	conn, err := rtsp.DialTimeout(c.cfg.SourceURL(), c.cfg.Timeout)
	if err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("failed to connect to RTSP: %v", err)
	}

	// Completes DESCRIBE/SETUP and exposes the negotiated tracks
	if _, err := conn.Streams(); err != nil {
		conn.Close()
		c.setStatus(StatusError)
		return fmt.Errorf("failed to get codec data: %v", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("session closed during connect")
	}
	c.conn = conn
	c.status = StatusConnected
	c.mu.Unlock()
	return nil
}

func (c *client) Play() error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	if c.playing {
		c.mu.Unlock()
		return nil
	}
	c.playing = true
	c.status = StatusPlaying
	conn := c.conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// readLoop pulls packets until the connection errors or the session stops
func (c *client) readLoop(conn *rtsp.Client) {
	defer close(c.frames)

	for {
		pkt, err := conn.ReadPacket()
		if err != nil {
			c.mu.Lock()
			if c.playing && !c.closed {
				log.Printf("[RTSP] Read error on %s: %v", c.cfg.URL, err)
				c.status = StatusError
			}
			c.playing = false
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		stopped := !c.playing || c.closed
		c.mu.Unlock()
		if stopped {
			return
		}

		select {
		case c.frames <- Frame{
			Data:       pkt.Data,
			Time:       pkt.Time,
			IsKeyFrame: pkt.IsKeyFrame,
			MediaIndex: pkt.Idx,
		}:
		case <-c.done:
			return
		}
	}
}

func (c *client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	c.signalDone()
	if c.status == StatusPlaying {
		c.status = StatusConnected
	}
	return nil
}

func (c *client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	c.signalDone()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.status != StatusError {
		c.status = StatusDisconnected
	}
	return nil
}

// Close is idempotent and safe to call in any state
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.playing = false
	c.signalDone()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.status = StatusDisconnected
	return nil
}

func (c *client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *client) Frames() <-chan Frame {
	return c.frames
}

func (c *client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}
