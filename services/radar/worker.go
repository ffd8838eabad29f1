package radar

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Status holds the current state of the radar background worker.
type Status struct {
	Running         bool           `json:"running"`
	State           string         `json:"state"`
	LastRefreshAt   time.Time      `json:"lastRefreshAt"`
	LastRefreshMs   int64          `json:"lastRefreshMs"`
	NextRefreshAt   time.Time      `json:"nextRefreshAt"`
	RefreshInterval string         `json:"refreshInterval"`
	LastResult      *RefreshResult `json:"lastResult,omitempty"`
	LastError       string         `json:"lastError,omitempty"`
}

// StartBackgroundRefresh runs a refresh on startup and then every interval.
// Each tick only fetches what the staleness clock reports as due, so the
// interval can be much shorter than the family intervals.
func (s *Service) StartBackgroundRefresh(interval time.Duration) {
	s.refreshInterval = interval
	s.stopCh = make(chan struct{})
	s.refreshNow = make(chan struct{}, 1)
	s.done = make(chan struct{})

	s.statusMu.Lock()
	s.running = true
	s.state = StateIdle
	s.statusMu.Unlock()

	go func() {
		defer close(s.done)

		log.Println("[radar] background refresh: initial refresh starting...")
		s.runScheduled()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			s.statusMu.Lock()
			s.nextRefreshAt = time.Now().Add(interval)
			s.statusMu.Unlock()

			select {
			case <-ticker.C:
				s.runScheduled()
			case <-s.refreshNow:
				log.Println("[radar] background refresh: manual refresh triggered...")
				s.runScheduled()
				ticker.Reset(interval)
			case <-s.stopCh:
				log.Println("[radar] background refresh: stopped")
				s.statusMu.Lock()
				s.running = false
				s.state = StateStopped
				s.statusMu.Unlock()
				return
			}
		}
	}()
}

func (s *Service) runScheduled() {
	if _, err := s.Refresh(context.Background()); err != nil {
		log.Printf("[radar] background refresh failed: %v", err)
	}
}

// RefreshNow triggers an immediate refresh on the background worker. Non-blocking.
func (s *Service) RefreshNow() bool {
	if s.refreshNow == nil {
		return false
	}
	select {
	case s.refreshNow <- struct{}{}:
		return true
	default:
		// Already a refresh pending
		return false
	}
}

// Stop stops the background worker and waits for an in-flight refresh.
func (s *Service) Stop() {
	if s.stopCh == nil {
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.done
}

// GetStatus returns the current status of the radar worker.
func (s *Service) GetStatus() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	intervalStr := ""
	if s.refreshInterval > 0 {
		if s.refreshInterval >= time.Hour {
			intervalStr = fmt.Sprintf("%.0fh", s.refreshInterval.Hours())
		} else {
			intervalStr = fmt.Sprintf("%.0fm", s.refreshInterval.Minutes())
		}
	}

	return Status{
		Running:         s.running,
		State:           s.state,
		LastRefreshAt:   s.lastRefreshAt,
		LastRefreshMs:   s.lastRefreshMs,
		NextRefreshAt:   s.nextRefreshAt,
		RefreshInterval: intervalStr,
		LastResult:      s.lastResult,
		LastError:       s.lastError,
	}
}
