package stream

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically reclaims streams that have gone idle. It goes
// through the manager's normal stop path, so a swept stream looks exactly
// like an explicitly stopped one.
type Sweeper struct {
	manager  *Manager
	timeout  time.Duration
	schedule *cron.Cron
}

// NewSweeper creates a sweeper that runs every interval and reclaims
// streams idle longer than idleTimeout
func NewSweeper(manager *Manager, idleTimeout, interval time.Duration) *Sweeper {
	s := &Sweeper{
		manager:  manager,
		timeout:  idleTimeout,
		schedule: cron.New(cron.WithSeconds()),
	}
	if _, err := s.schedule.AddFunc(fmt.Sprintf("@every %s", interval), s.sweep); err != nil {
		log.Printf("[Sweeper] Error scheduling sweep every %s: %v", interval, err)
	}
	return s
}

// Start begins the periodic sweep
func (s *Sweeper) Start() {
	log.Printf("[Sweeper] Starting idle stream sweeper (timeout %s)", s.timeout)
	s.schedule.Start()
}

// Stop halts the schedule; an in-flight sweep finishes on its own
func (s *Sweeper) Stop() {
	s.schedule.Stop()
	log.Printf("[Sweeper] Stopped idle stream sweeper")
}

// sweep stops every idle stream. One stream failing to stop never aborts
// the sweep for the rest.
func (s *Sweeper) sweep() {
	for _, cameraID := range s.manager.IdleCameras(s.timeout) {
		log.Printf("[Sweeper] Reclaiming idle stream for camera %s", cameraID)
		if err := s.manager.StopStream(cameraID); err != nil && !errors.Is(err, ErrNotActive) {
			log.Printf("[Sweeper] Error stopping idle stream for camera %s: %v", cameraID, err)
		}
	}
}
