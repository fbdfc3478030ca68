// Package stream runs periodic telemetry sampling loops, one per session,
// and fans the resulting samples out to publishers.
package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orion-fleet/orion/internal/errors"
	"github.com/orion-fleet/orion/internal/logger"
	"github.com/orion-fleet/orion/internal/telemetry"
)

// DefaultInterval is the sampling period when the caller doesn't pick one.
const DefaultInterval = time.Second

// Sampler takes one telemetry sample. *telemetry.Sampler implements it.
type Sampler interface {
	Sample(ctx context.Context, id string) (*telemetry.Sample, error)
}

// Publisher receives samples produced by a stream.
type Publisher interface {
	Publish(s telemetry.Sample)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(s telemetry.Sample)

// Publish calls f(s).
func (f PublisherFunc) Publish(s telemetry.Sample) { f(s) }

type loop struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Controller owns the running stream loops, keyed by session id.
type Controller struct {
	sampler Sampler
	log     logger.Logger

	mu    sync.Mutex
	loops map[string]*loop

	// stopping holds loops that were stopped but haven't exited yet. Start
	// waits for them so an id never has two loops.
	stopping map[string]*loop
}

// NewController creates a Controller that samples through sampler.
func NewController(sampler Sampler, log logger.Logger) *Controller {
	return &Controller{
		sampler:  sampler,
		log:      logger.OrDefault(log),
		loops:    make(map[string]*loop),
		stopping: make(map[string]*loop),
	}
}

// Start begins sampling id every interval and publishing each sample to pub.
// Starting a stream that is already running does nothing. A non-positive
// interval is a config error.
func (c *Controller) Start(id string, interval time.Duration, pub Publisher) error {
	if interval <= 0 {
		return errors.New(errors.ErrConfig,
			"stream interval must be positive",
			"Pass an interval of at least one millisecond")
	}
	if pub == nil {
		return errors.New(errors.ErrConfig, "stream publisher is required", "")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaitStopped(id)

	if _, running := c.loops[id]; running {
		c.log.Debug("stream %s already running", id)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{interval: interval, cancel: cancel, done: make(chan struct{})}
	c.loops[id] = l

	go c.run(ctx, id, l, pub)

	c.log.Debug("stream %s started every %s", id, interval)
	return nil
}

// run samples until ctx is cancelled. A sample already in progress when the
// stream stops is allowed to finish and is still published.
func (c *Controller) run(ctx context.Context, id string, l *loop, pub Publisher) {
	defer close(l.done)

	for {
		if ctx.Err() != nil {
			return
		}

		sample, err := c.sampler.Sample(context.WithoutCancel(ctx), id)
		if err != nil {
			c.log.Debug("stream %s: sample failed: %v", id, err)
		} else {
			pub.Publish(*sample)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.interval):
		}
	}
}

// awaitStopped blocks until a loop still stopping for id has exited. c.mu
// must be held; it is released while waiting.
func (c *Controller) awaitStopped(id string) {
	for {
		l, ok := c.stopping[id]
		if !ok {
			return
		}
		c.mu.Unlock()
		<-l.done
		c.mu.Lock()
		c.forgetStopped(id, l)
	}
}

func (c *Controller) forgetStopped(id string, l *loop) {
	if c.stopping[id] == l {
		delete(c.stopping, id)
	}
}

// Stop ends the stream for id and waits for its loop to exit. Stopping a
// stream that isn't running succeeds.
func (c *Controller) Stop(id string) {
	c.mu.Lock()
	l, ok := c.loops[id]
	if ok {
		delete(c.loops, id)
		c.stopping[id] = l
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	l.cancel()
	<-l.done

	c.mu.Lock()
	c.forgetStopped(id, l)
	c.mu.Unlock()
	c.log.Debug("stream %s stopped", id)
}

// Active reports whether a stream is running for id.
func (c *Controller) Active(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.loops[id]
	return ok
}

// Interval returns the sampling period of the stream for id.
func (c *Controller) Interval(id string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.loops[id]
	if !ok {
		return 0, false
	}
	return l.interval, true
}

// List returns the ids with running streams, sorted.
func (c *Controller) List() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.loops))
	for id := range c.loops {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// StopAll stops every stream and waits for all loops to exit.
func (c *Controller) StopAll() {
	c.mu.Lock()
	loops := c.loops
	c.loops = make(map[string]*loop)
	for id, l := range loops {
		c.stopping[id] = l
	}
	c.mu.Unlock()

	for _, l := range loops {
		l.cancel()
	}
	for _, l := range loops {
		<-l.done
	}

	c.mu.Lock()
	for id, l := range loops {
		c.forgetStopped(id, l)
	}
	c.mu.Unlock()
}
