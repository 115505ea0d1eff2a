package scans

import (
	"context"
	"sync"
	"time"
)

// Request asks for one scan of Target.
type Request struct {
	Target string `json:"target"`
}

// Dispatcher hands a scan request to whatever runs it: a queue or a goroutine.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// DefaultDrainGrace is how long Wait lets cancelled scans write their final status.
const DefaultDrainGrace = 5 * time.Second

// InProcess runs every request as its own orchestration in a goroutine.
type InProcess struct {
	Service *Service
	// Grace bounds Wait after its ctx ended; zero means DefaultDrainGrace.
	Grace time.Duration

	wg     sync.WaitGroup
	once   sync.Once
	base   context.Context
	cancel context.CancelFunc
}

func (d *InProcess) init() {
	d.once.Do(func() {
		d.base, d.cancel = context.WithCancel(context.Background())
	})
}

func (d *InProcess) Dispatch(ctx context.Context, req Request) error {
	d.init()
	// request ctx ends with the HTTP response; the scan must not
	scanCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(d.base, cancel)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer stop()
		_, _ = d.Service.RunScan(scanCtx, req.Target)
	}()
	return nil
}

// Wait blocks until every dispatched scan returned. When ctx ends first the
// scans still running are cancelled, so they finish as failed, and Wait gives
// them Grace to do so before returning ctx.Err().
func (d *InProcess) Wait(ctx context.Context) error {
	d.init()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}
	d.cancel()

	grace := d.Grace
	if grace <= 0 {
		grace = DefaultDrainGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
	return ctx.Err()
}
