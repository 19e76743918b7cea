package render

import (
	"sync"
	"time"

	"github.com/signalsfoundry/graphscape/model"
)

// FrameClock is the interface loop consumers use to read frame timing.
type FrameClock interface {
	// Frame returns the index of the most recently completed frame.
	Frame() uint64
	// Elapsed returns time since the loop started.
	Elapsed() time.Duration
}

// FrameLoop drives rendering at a fixed target rate. Each tick it invokes
// the registered listeners in order and reports the measured frame duration
// to the governor. Listeners do the actual per-frame work (geometry update,
// uniform writes, draw submission); the loop only owns cadence and timing.
type FrameLoop struct {
	mu       sync.RWMutex
	interval time.Duration
	frame    uint64
	started  time.Time

	governor *PerformanceGovernor

	listeners []func(frame uint64, elapsed time.Duration)
	statsFn   func() (drawCalls, visibleNodes, visibleEdges int)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewFrameLoop targets the FPS of the governor's current profile; the rate
// follows tier changes automatically. governor may be nil, in which case the
// loop runs at 60 FPS and timing is not recorded.
func NewFrameLoop(governor *PerformanceGovernor) *FrameLoop {
	fl := &FrameLoop{
		interval: time.Second / 60,
		governor: governor,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if governor != nil {
		fl.interval = intervalFor(governor.Profile())
		governor.OnProfileChange(func(p model.PerformanceProfile) {
			fl.mu.Lock()
			fl.interval = intervalFor(p)
			fl.mu.Unlock()
		})
	}
	return fl
}

func intervalFor(p model.PerformanceProfile) time.Duration {
	fps := p.TargetFPS
	if fps <= 0 {
		fps = 60
	}
	return time.Second / time.Duration(fps)
}

// AddListener registers a per-frame callback. Register before Start.
func (fl *FrameLoop) AddListener(fn func(frame uint64, elapsed time.Duration)) {
	fl.listeners = append(fl.listeners, fn)
}

// SetStatsFunc supplies the per-frame load numbers reported to the governor,
// typically the draw and visibility counts of the last submitted frame.
// Register before Start.
func (fl *FrameLoop) SetStatsFunc(fn func() (drawCalls, visibleNodes, visibleEdges int)) {
	fl.statsFn = fn
}

// Frame implements FrameClock.
func (fl *FrameLoop) Frame() uint64 {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.frame
}

// Elapsed implements FrameClock.
func (fl *FrameLoop) Elapsed() time.Duration {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	if fl.started.IsZero() {
		return 0
	}
	return time.Since(fl.started)
}

func (fl *FrameLoop) currentInterval() time.Duration {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.interval
}

// Start runs the loop until Stop. It returns a channel closed when the loop
// goroutine exits.
func (fl *FrameLoop) Start() <-chan struct{} {
	fl.mu.Lock()
	fl.started = time.Now()
	fl.mu.Unlock()

	go func() {
		defer close(fl.done)

		active := fl.currentInterval()
		ticker := time.NewTicker(active)
		defer ticker.Stop()

		for {
			select {
			case <-fl.stop:
				return
			case <-ticker.C:
			}

			frameStart := time.Now()
			fl.mu.Lock()
			fl.frame++
			frame := fl.frame
			elapsed := frameStart.Sub(fl.started)
			fl.mu.Unlock()

			for _, fn := range fl.listeners {
				fn(frame, elapsed)
			}

			if fl.governor != nil {
				var draws, nodes, edges int
				if fl.statsFn != nil {
					draws, nodes, edges = fl.statsFn()
				}
				fl.governor.RecordFrame(time.Since(frameStart), draws, nodes, edges)
			}

			// Follow tier changes without recreating the loop.
			if next := fl.currentInterval(); next != active {
				active = next
				ticker.Reset(active)
			}
		}
	}()
	return fl.done
}

// Stop terminates the loop and waits for the goroutine to exit.
func (fl *FrameLoop) Stop() {
	fl.stopOnce.Do(func() {
		close(fl.stop)
	})
	<-fl.done
}
