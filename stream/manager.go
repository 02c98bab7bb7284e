package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"camstream/config"
	"camstream/database"
	"camstream/events"
	"camstream/hls"
	"camstream/relay"
	"camstream/rtsp"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotActive is returned by stop/quality/status mutations against a
	// camera with no running stream
	ErrNotActive = errors.New("no active stream for camera")
	// ErrConnectionTimeout is returned when the RTSP session never becomes
	// usable within the configured bound
	ErrConnectionTimeout = errors.New("timed out waiting for RTSP connection")
)

const statusPollInterval = 100 * time.Millisecond

// Transcoder is the supervisor that turns an RTSP source into HLS output.
// Implemented by hls.Generator; faked in tests.
type Transcoder interface {
	Start(streamID, rtspURL string, quality hls.Quality) (string, error)
	Stop(streamID string)
	IsActive(streamID string) bool
	PlaylistURL(streamID string) string
	SetOnExit(fn func(streamID string))
	Cleanup()
}

// activeStream is one camera's live streaming engagement. The manager's
// mutex guards quality and playlistPath; lastActivity is atomic because the
// frame pump stamps it on every frame.
type activeStream struct {
	streamID  string
	cameraID  string
	sourceURL string
	session   rtsp.Session
	relay     *relay.Relay
	cancel    context.CancelFunc
	startedAt time.Time

	lastActivity atomic.Int64 // epoch ms

	quality      hls.Quality
	playlistPath string
}

func (s *activeStream) touch() {
	now := time.Now().UnixMilli()
	// Keep lastActivity monotone even if clocks wobble
	for {
		prev := s.lastActivity.Load()
		if now <= prev || s.lastActivity.CompareAndSwap(prev, now) {
			return
		}
	}
}

// Manager is the authoritative registry of active camera streams. It owns
// the full lifecycle: RTSP connect, frame relay, transcoder supervision,
// teardown and lifecycle events. At most one stream exists per camera.
type Manager struct {
	cfg        config.Config
	db         database.Database
	transcoder Transcoder
	notifier   events.Notifier
	dial       rtsp.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu      sync.Mutex
	streams map[string]*activeStream
}

// NewManager creates a stream manager. A nil dialer uses the real RTSP
// client; a nil notifier discards events.
func NewManager(cfg config.Config, db database.Database, transcoder Transcoder, notifier events.Notifier, dial rtsp.Dialer) *Manager {
	if dial == nil {
		dial = rtsp.NewSession
	}
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		db:         db,
		transcoder: transcoder,
		notifier:   notifier,
		dial:       dial,
		ctx:        ctx,
		cancel:     cancel,
		streams:    make(map[string]*activeStream),
	}
	transcoder.SetOnExit(m.handleTranscoderExit)
	return m
}

// handleTranscoderExit runs when the transcoder's process dies without Stop
// being asked for it. The stream cannot serve HLS anymore, so it goes down
// through the normal stop path and the camera becomes startable again.
func (m *Manager) handleTranscoderExit(streamID string) {
	m.mu.Lock()
	var cameraID string
	for id, stream := range m.streams {
		if stream.streamID == streamID {
			cameraID = id
			break
		}
	}
	m.mu.Unlock()
	if cameraID == "" {
		return
	}

	log.Printf("[StreamManager] Transcoder died for stream %s, stopping camera %s", streamID, cameraID)
	if err := m.StopStream(cameraID); err != nil && !errors.Is(err, ErrNotActive) {
		log.Printf("[StreamManager] Error stopping stream %s after transcoder exit: %v", streamID, err)
	}
}

// StartStream begins streaming for a camera and returns the stream ID.
// Calling it for a camera that is already streaming returns the existing
// stream ID; concurrent calls for the same camera collapse into one
// attempt.
func (m *Manager) StartStream(cameraID string) (string, error) {
	m.mu.Lock()
	if existing, ok := m.streams[cameraID]; ok {
		m.mu.Unlock()
		log.Printf("[StreamManager] Stream already active for camera %s: %s", cameraID, existing.streamID)
		return existing.streamID, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(cameraID, func() (interface{}, error) {
		return m.startStream(cameraID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) startStream(cameraID string) (string, error) {
	// A concurrent caller may have won while we queued on the singleflight
	m.mu.Lock()
	if existing, ok := m.streams[cameraID]; ok {
		m.mu.Unlock()
		return existing.streamID, nil
	}
	m.mu.Unlock()

	camera, err := m.db.GetCamera(cameraID)
	if err != nil {
		return "", err
	}

	rtspCfg := rtsp.Config{
		URL:         camera.URL,
		Username:    camera.Username,
		Password:    camera.Password,
		Timeout:     m.cfg.ConnectTimeout,
		EnableAudio: camera.AudioEnabled,
	}

	session := m.dial(rtspCfg)
	if err := session.Connect(); err != nil {
		session.Close()
		return "", fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}

	if err := m.waitConnected(session); err != nil {
		session.Close()
		return "", err
	}

	if err := session.Play(); err != nil {
		session.Close()
		return "", fmt.Errorf("failed to start playback for camera %s: %v", cameraID, err)
	}

	streamID := uuid.NewString()
	ctx, cancel := context.WithCancel(m.ctx)
	stream := &activeStream{
		streamID:  streamID,
		cameraID:  cameraID,
		sourceURL: rtspCfg.SourceURL(),
		session:   session,
		relay:     relay.NewRelay(m.cfg.FrameBufferSize),
		cancel:    cancel,
		startedAt: time.Now(),
		quality:   hls.DefaultQuality,
	}
	stream.touch()

	go m.pumpFrames(ctx, stream)

	playlistPath, err := m.transcoder.Start(streamID, stream.sourceURL, hls.DefaultQuality)
	if err != nil {
		// Roll back everything acquired in this attempt
		cancel()
		stream.relay.Close()
		m.closeSession(session)
		return "", err
	}
	stream.playlistPath = playlistPath

	m.mu.Lock()
	if existing, ok := m.streams[cameraID]; ok {
		// Atomic check-and-insert lost; the winner's session stands
		m.mu.Unlock()
		cancel()
		stream.relay.Close()
		m.transcoder.Stop(streamID)
		m.closeSession(session)
		return existing.streamID, nil
	}
	m.streams[cameraID] = stream
	m.mu.Unlock()

	// The exit callback may have fired before the stream was registered and
	// found nothing to stop; re-check the transcoder now that it would
	if !m.transcoder.IsActive(streamID) {
		if err := m.StopStream(cameraID); err != nil && !errors.Is(err, ErrNotActive) {
			log.Printf("[StreamManager] Error cleaning up stream %s after startup exit: %v", streamID, err)
		}
		return "", fmt.Errorf("%w: transcoder exited during startup for camera %s", hls.ErrTranscodeStart, cameraID)
	}

	m.notifier.Publish(events.StreamEvent{
		Kind:      events.KindStreamStarted,
		CameraID:  cameraID,
		StreamID:  streamID,
		Timestamp: time.Now().UnixMilli(),
	})
	log.Printf("[StreamManager] Started stream %s for camera %s", streamID, cameraID)
	return streamID, nil
}

// waitConnected polls the session status until it is usable or the
// configured timeout passes. The underlying engine does not guarantee a
// push notification, so polling it is.
func (m *Manager) waitConnected(session rtsp.Session) error {
	deadline := time.Now().Add(m.cfg.ConnectTimeout)
	for {
		switch session.Status() {
		case rtsp.StatusConnected, rtsp.StatusPlaying:
			return nil
		case rtsp.StatusError:
			return fmt.Errorf("%w: session entered error state", ErrConnectionTimeout)
		}
		if time.Now().After(deadline) {
			return ErrConnectionTimeout
		}
		time.Sleep(statusPollInterval)
	}
}

// pumpFrames forwards the session's frames into the relay, stamping
// activity per frame. When the frame source dries up because the session
// errored, the stream tears itself down through the normal stop path.
func (m *Manager) pumpFrames(ctx context.Context, stream *activeStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-stream.session.Frames():
			if !ok {
				if ctx.Err() == nil && stream.session.Status() == rtsp.StatusError {
					log.Printf("[StreamManager] Session error on camera %s, stopping stream %s",
						stream.cameraID, stream.streamID)
					go func() {
						if err := m.StopStream(stream.cameraID); err != nil && !errors.Is(err, ErrNotActive) {
							log.Printf("[StreamManager] Error stopping failed stream %s: %v", stream.streamID, err)
						}
					}()
				}
				return
			}
			stream.touch()
			stream.relay.Publish(frame)
		}
	}
}

// StopStream tears down a camera's stream. The registry entry is removed
// first so concurrent callers immediately see the camera as inactive;
// teardown then runs every step even if individual steps error.
func (m *Manager) StopStream(cameraID string) error {
	m.mu.Lock()
	stream, ok := m.streams[cameraID]
	if !ok {
		m.mu.Unlock()
		return ErrNotActive
	}
	delete(m.streams, cameraID)
	m.mu.Unlock()

	m.transcoder.Stop(stream.streamID)
	stream.cancel()
	stream.relay.Close()
	m.closeSession(stream.session)

	m.notifier.Publish(events.StreamEvent{
		Kind:      events.KindStreamStopped,
		CameraID:  cameraID,
		StreamID:  stream.streamID,
		Timestamp: time.Now().UnixMilli(),
	})
	log.Printf("[StreamManager] Stopped stream %s for camera %s", stream.streamID, cameraID)
	return nil
}

// closeSession releases RTSP resources; errors are logged, never fatal
func (m *Manager) closeSession(session rtsp.Session) {
	if err := session.Stop(); err != nil {
		log.Printf("[StreamManager] Error stopping RTSP session: %v", err)
	}
	if err := session.Disconnect(); err != nil {
		log.Printf("[StreamManager] Error disconnecting RTSP session: %v", err)
	}
	if err := session.Close(); err != nil {
		log.Printf("[StreamManager] Error closing RTSP session: %v", err)
	}
}

// SetQuality restarts the transcoder for a camera's stream at a new
// quality. Quality and playlist path are updated together, so readers
// never observe one without the other.
func (m *Manager) SetQuality(cameraID string, quality hls.Quality) error {
	m.mu.Lock()
	stream, ok := m.streams[cameraID]
	if !ok {
		m.mu.Unlock()
		return ErrNotActive
	}
	streamID := stream.streamID
	sourceURL := stream.sourceURL
	m.mu.Unlock()

	// Process work happens outside the registry lock
	m.transcoder.Stop(streamID)
	playlistPath, err := m.transcoder.Start(streamID, sourceURL, quality)
	if err != nil {
		return fmt.Errorf("failed to restart transcoder at %s for camera %s: %w", quality, cameraID, err)
	}

	m.mu.Lock()
	current, stillActive := m.streams[cameraID]
	if !stillActive || current.streamID != streamID {
		// The stream was stopped while the transcoder restarted; the fresh
		// process belongs to nobody and must not outlive this call
		m.mu.Unlock()
		m.transcoder.Stop(streamID)
		return ErrNotActive
	}
	current.quality = quality
	current.playlistPath = playlistPath
	m.mu.Unlock()

	log.Printf("[StreamManager] Changed stream quality to %s for camera %s", quality, cameraID)
	return nil
}

// IsActive reports whether a camera is currently streaming
func (m *Manager) IsActive(cameraID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[cameraID]
	return ok
}

// StreamID returns the active stream ID for a camera, if any
func (m *Manager) StreamID(cameraID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, ok := m.streams[cameraID]
	if !ok {
		return "", false
	}
	return stream.streamID, true
}

// Quality returns the active stream's transcoding quality, if any
func (m *Manager) Quality(cameraID string) (hls.Quality, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, ok := m.streams[cameraID]
	if !ok {
		return "", false
	}
	return stream.quality, true
}

// StartedAt returns when the camera's stream began, if streaming
func (m *Manager) StartedAt(cameraID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, ok := m.streams[cameraID]
	if !ok {
		return time.Time{}, false
	}
	return stream.startedAt, true
}

// PlaylistPath returns the on-disk HLS playlist for a camera, if streaming
func (m *Manager) PlaylistPath(cameraID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, ok := m.streams[cameraID]
	if !ok {
		return "", false
	}
	return stream.playlistPath, true
}

// HlsURL returns the public playlist URL for a camera, if streaming
func (m *Manager) HlsURL(cameraID string) (string, bool) {
	m.mu.Lock()
	stream, ok := m.streams[cameraID]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	return m.transcoder.PlaylistURL(stream.streamID), true
}

// Subscribe taps the live frame sequence for a camera. The returned cancel
// function releases the subscription; the relay itself stays up until the
// stream stops.
func (m *Manager) Subscribe(cameraID string) (<-chan rtsp.Frame, func(), error) {
	m.mu.Lock()
	stream, ok := m.streams[cameraID]
	m.mu.Unlock()
	if !ok {
		return nil, nil, ErrNotActive
	}
	ch, cancel := stream.relay.Subscribe()
	return ch, cancel, nil
}

// ActiveCameras returns the IDs of all cameras currently streaming
func (m *Manager) ActiveCameras() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	return ids
}

// ActiveCount returns the number of active streams
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// IdleCameras returns cameras whose last frame activity is older than the
// given timeout
func (m *Manager) IdleCameras(timeout time.Duration) []string {
	cutoff := time.Now().Add(-timeout).UnixMilli()
	m.mu.Lock()
	defer m.mu.Unlock()
	var idle []string
	for id, stream := range m.streams {
		if stream.lastActivity.Load() < cutoff {
			idle = append(idle, id)
		}
	}
	return idle
}

// Close stops every active stream and shuts the transcoder down
func (m *Manager) Close() {
	for _, cameraID := range m.ActiveCameras() {
		if err := m.StopStream(cameraID); err != nil && !errors.Is(err, ErrNotActive) {
			log.Printf("[StreamManager] Error stopping stream during close for camera %s: %v", cameraID, err)
		}
	}
	m.transcoder.Cleanup()
	m.cancel()
}
