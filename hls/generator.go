package hls

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// ErrTranscodeStart is returned when the FFmpeg process dies immediately or
// never produces a playlist within the startup window
var ErrTranscodeStart = errors.New("failed to start HLS generation")

const (
	segmentDuration  = 4  // seconds per HLS segment
	playlistSize     = 10 // rolling segments kept in the playlist
	startupTimeout   = 1 * time.Second
	startupPollEvery = 100 * time.Millisecond
)

// execCommand is swapped out in tests
var execCommand = exec.Command

// process is one tracked FFmpeg instance. done is closed by the exit
// watcher once Wait returns.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Generator supervises one FFmpeg process per stream, each converting an
// RTSP source into a rolling HLS playlist under {outputDir}/{streamID}/.
type Generator struct {
	outputDir   string
	ffmpegPath  string
	gracePeriod time.Duration

	mu        sync.Mutex
	processes map[string]*process
	onExit    func(streamID string)
}

// NewGenerator creates a generator writing below outputDir, creating it if
// needed
func NewGenerator(outputDir, ffmpegPath string) *Generator {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		log.Printf("[HLS] Error creating output directory %s: %v", outputDir, err)
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Generator{
		outputDir:   outputDir,
		ffmpegPath:  ffmpegPath,
		gracePeriod: 5 * time.Second,
		processes:   make(map[string]*process),
	}
}

// SetOnExit registers a callback invoked when a tracked process exits on
// its own, without Stop having been called. Exits driven by Stop or Cleanup
// never fire it.
func (g *Generator) SetOnExit(fn func(streamID string)) {
	g.mu.Lock()
	g.onExit = fn
	g.mu.Unlock()
}

// PlaylistPath returns where the playlist for a stream lives on disk
func (g *Generator) PlaylistPath(streamID string) string {
	return filepath.Join(g.outputDir, streamID, "playlist.m3u8")
}

// PlaylistURL returns the public URL for a stream's playlist
func (g *Generator) PlaylistURL(streamID string) string {
	return fmt.Sprintf("/api/v1/streams/%s/hls/playlist.m3u8", streamID)
}

// Start launches FFmpeg for the given stream and returns the playlist path
// once the process is alive and the playlist file has appeared. Calling
// Start for a stream that is already running returns the existing playlist
// path.
func (g *Generator) Start(streamID, rtspURL string, quality Quality) (string, error) {
	g.mu.Lock()
	if _, exists := g.processes[streamID]; exists {
		g.mu.Unlock()
		log.Printf("[HLS] Generation already running for stream: %s", streamID)
		return g.PlaylistPath(streamID), nil
	}
	g.mu.Unlock()

	streamDir := filepath.Join(g.outputDir, streamID)
	if err := os.MkdirAll(streamDir, 0755); err != nil {
		return "", fmt.Errorf("%w: cannot create stream directory: %v", ErrTranscodeStart, err)
	}

	playlistPath := g.PlaylistPath(streamID)
	segmentPath := filepath.Join(streamDir, "segment_%03d.ts")
	args := buildArgs(rtspURL, playlistPath, segmentPath, quality)

	log.Printf("[HLS] Starting generation for stream %s: %s %v", streamID, g.ffmpegPath, args)

	cmd := execCommand(g.ffmpegPath, args...)
	cmd.Dir = g.outputDir
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscodeStart, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{})}

	g.mu.Lock()
	if _, exists := g.processes[streamID]; exists {
		// Lost a race with a concurrent Start; keep the winner
		g.mu.Unlock()
		cmd.Process.Kill()
		go cmd.Wait()
		return g.PlaylistPath(streamID), nil
	}
	g.processes[streamID] = p
	g.mu.Unlock()

	go g.watchExit(streamID, p)

	// Give FFmpeg a moment to prove itself: alive and playlist on disk
	deadline := time.Now().Add(startupTimeout)
	for {
		select {
		case <-p.done:
			return "", fmt.Errorf("%w: process exited during startup for stream %s", ErrTranscodeStart, streamID)
		case <-time.After(startupPollEvery):
		}

		if _, err := os.Stat(playlistPath); err == nil {
			log.Printf("[HLS] Generation started successfully for stream: %s", streamID)
			return playlistPath, nil
		}
		if time.Now().After(deadline) {
			break
		}
	}

	log.Printf("[HLS] Playlist never appeared for stream %s, giving up", streamID)
	g.Stop(streamID)
	return "", fmt.Errorf("%w: no playlist within %v for stream %s", ErrTranscodeStart, startupTimeout, streamID)
}

// watchExit removes the process from the tracking table the moment it exits
// for any reason, so IsActive never reports a dead process as active. Stop
// untracks before signaling, so a process still tracked here died on its
// own; those exits are reported through the onExit callback.
func (g *Generator) watchExit(streamID string, p *process) {
	err := p.cmd.Wait()
	close(p.done)

	g.mu.Lock()
	unexpected := false
	if tracked, ok := g.processes[streamID]; ok && tracked == p {
		delete(g.processes, streamID)
		unexpected = true
	}
	onExit := g.onExit
	g.mu.Unlock()

	if err != nil {
		log.Printf("[HLS] Generation process for stream %s exited: %v", streamID, err)
	} else {
		log.Printf("[HLS] Generation process for stream %s exited cleanly", streamID)
	}

	if unexpected && onExit != nil {
		onExit(streamID)
	}
}

// Stop terminates the FFmpeg process for a stream, escalating from SIGTERM
// to SIGKILL after the grace period. The stream is always untracked, even
// if termination errors.
func (g *Generator) Stop(streamID string) {
	g.mu.Lock()
	p, ok := g.processes[streamID]
	delete(g.processes, streamID)
	g.mu.Unlock()

	if !ok {
		return
	}

	if p.cmd.Process != nil {
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			log.Printf("[HLS] Error signaling process for stream %s: %v", streamID, err)
		}
		select {
		case <-p.done:
		case <-time.After(g.gracePeriod):
			log.Printf("[HLS] Process for stream %s ignored SIGTERM, killing", streamID)
			p.cmd.Process.Kill()
			<-p.done
		}
	}
	log.Printf("[HLS] Stopped generation for stream: %s", streamID)
}

// IsActive reports whether a live FFmpeg process is tracked for the stream
func (g *Generator) IsActive(streamID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.processes[streamID]
	return ok
}

// ActiveCount returns the number of tracked processes
func (g *Generator) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.processes)
}

// Cleanup stops every tracked process; used on orchestrator shutdown
func (g *Generator) Cleanup() {
	g.mu.Lock()
	ids := make([]string, 0, len(g.processes))
	for id := range g.processes {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	for _, id := range ids {
		g.Stop(id)
	}
}

// buildArgs assembles the FFmpeg command line for one stream
func buildArgs(rtspURL, playlistPath, segmentPath string, quality Quality) []string {
	args := []string{
		"-i", rtspURL,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-hls_time", fmt.Sprintf("%d", segmentDuration),
		"-hls_list_size", fmt.Sprintf("%d", playlistSize),
		"-hls_flags", "delete_segments+append_list",
		"-hls_segment_filename", segmentPath,
		"-hls_allow_cache", "0",
		"-f", "hls",
		playlistPath,
	}

	p := profiles[quality]
	args = append(args, "-b:v", p.Bitrate, "-s", p.Resolution, "-r", p.FrameRate)
	if p.Preset != "" {
		args = append(args, "-preset", p.Preset)
	}
	return args
}
