package content

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feedrelay/internal/backend"
	"feedrelay/internal/cache"
	"feedrelay/internal/logging"
)

const (
	defaultRetryWindow    = 5 * time.Minute
	defaultTriggerTimeout = 30 * time.Second
)

// Executor performs resolver actions in the background. A trigger for an
// item is sent at most once per retry window, however often it is rendered.
type Executor struct {
	trigger backend.ExtractionTrigger
	recent  *cache.Manager
	window  time.Duration
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewExecutor(trigger backend.ExtractionTrigger, recent *cache.Manager, window time.Duration) *Executor {
	if window <= 0 {
		window = defaultRetryWindow
	}
	return &Executor{
		trigger: trigger,
		recent:  recent,
		window:  window,
		timeout: defaultTriggerTimeout,
	}
}

// Execute dispatches a and reports whether a request was started. Failures
// are logged, never returned.
func (e *Executor) Execute(ctx context.Context, a Action) bool {
	if a.Kind != ActionTriggerExtraction {
		return false
	}

	key := fmt.Sprintf("extract:%d", a.ItemID)
	if !e.recent.SetIfAbsent(key, time.Now(), e.window) {
		logging.Debug("Extraction already requested", "item_id", a.ItemID)
		return false
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		if err := e.trigger.TriggerExtraction(reqCtx, a.ItemID); err != nil {
			logging.Warn("Failed to trigger extraction", "item_id", a.ItemID, "err", err)
			return
		}
		logging.Debug("Extraction triggered", "item_id", a.ItemID)
	}()
	return true
}

// Wait blocks until every dispatched request has finished
func (e *Executor) Wait() {
	e.wg.Wait()
}
