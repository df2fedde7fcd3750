package scheduler

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// Scheduler keeps one in-memory timer per pending order, keyed by order
// id so cancellation can remove exactly one timer. Timers are not
// durable; the recovery routine rebuilds them from the order store on
// startup.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	now     func() time.Time
}

func New() *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Useful for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Arm registers fn to run at due, replacing any timer already armed for
// the order. A due time at or before now fires immediately on the timer
// goroutine.
func (s *Scheduler) Arm(orderID string, due time.Time, fn func(orderID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		logger.WithFields(map[string]interface{}{
			"component": "Scheduler",
			"order_id":  orderID,
		}).Warn("Scheduler stopped, ignoring arm request")
		return
	}

	if existing, ok := s.timers[orderID]; ok {
		existing.Stop()
	}

	delay := due.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.timers[orderID] = time.AfterFunc(delay, func() {
		s.remove(orderID)
		fn(orderID)
	})

	logger.WithFields(map[string]interface{}{
		"component": "Scheduler",
		"order_id":  orderID,
		"due_at":    due,
	}).Debug("Timer armed")
}

// Disarm stops and removes the timer for an order. Returns false if no
// timer was armed, which happens when the timer already fired — the
// status compare-and-set in the store then decides the race.
func (s *Scheduler) Disarm(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[orderID]
	if !ok {
		return false
	}

	timer.Stop()
	delete(s.timers, orderID)

	logger.WithFields(map[string]interface{}{
		"component": "Scheduler",
		"order_id":  orderID,
	}).Debug("Timer disarmed")

	return true
}

// Armed reports how many timers are currently registered.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop drains all timers and rejects further arming. Called on shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}

	logger.WithField("component", "Scheduler").Info("Scheduler stopped")
}

func (s *Scheduler) remove(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, orderID)
}
