package verify

import (
	"context"
	"sync"
	"time"

	"facegate-go/internal/client/api"

	log "github.com/sirupsen/logrus"
)

// Capturer provides the current camera frame as a data URI. Stop releases
// the underlying device.
type Capturer interface {
	CaptureDataURI() (string, error)
	Stop()
}

// Verifier posts a probe image to the backend.
type Verifier interface {
	Verify(ctx context.Context, imageDataURI string) (*api.VerifyResult, error)
}

// Poller captures a frame on a fixed interval and submits it for
// verification. At most one request is in flight; ticks that land while a
// call is still running are skipped rather than queued.
type Poller struct {
	capturer Capturer
	client   Verifier
	interval time.Duration

	// OnResult, when set, is called from the polling goroutine after each
	// completed verification.
	OnResult func(*api.VerifyResult)

	mu       sync.Mutex
	inFlight bool
	last     *api.VerifyResult

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a stopped poller.
func NewPoller(capturer Capturer, client Verifier, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{capturer: capturer, client: client, interval: interval}
}

// Start launches the polling loop. Calling Start on a running poller is a
// no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop halts the loop, waits for any in-flight verification to return and
// releases the camera. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.capturer.Stop()
}

// Last returns the most recent completed verification result, which may be
// nil before the first round trip finishes.
func (p *Poller) Last() *api.VerifyResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First probe goes out immediately instead of waiting a full interval.
	p.dispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

// dispatch starts one verification round trip unless one is already
// running.
func (p *Poller) dispatch(ctx context.Context) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		log.Debug("Verification still in flight, skipping tick")
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.inFlight = false
			p.mu.Unlock()
		}()
		p.verifyOnce(ctx)
	}()
}

func (p *Poller) verifyOnce(ctx context.Context) {
	uri, err := p.capturer.CaptureDataURI()
	if err != nil {
		log.Warnf("Verification capture failed: %v", err)
		return
	}

	result, err := p.client.Verify(ctx, uri)
	if err != nil {
		// Keep the previous result on transient failures.
		log.Warnf("Verification request failed: %v", err)
		return
	}

	p.mu.Lock()
	p.last = result
	p.mu.Unlock()

	if p.OnResult != nil {
		p.OnResult(result)
	}
}
