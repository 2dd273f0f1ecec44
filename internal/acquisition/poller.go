// Package acquisition runs the caller-side transfer loop. The controller
// itself never polls; a Poller calls TransferData on a fixed interval.
package acquisition

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/controller"
	"github.com/KevinKickass/ImpedanceBridgeCore/internal/types"
	"go.uber.org/zap"
)

// Source is the controller operation the poller drives.
type Source interface {
	TransferData(ctx context.Context) (*controller.Transfer, error)
}

type Handler func(t *controller.Transfer)

type Poller struct {
	source   Source
	interval time.Duration
	handler  Handler
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewPoller creates a poller; handler may be nil.
func NewPoller(source Source, interval time.Duration, handler Handler, logger *zap.Logger) *Poller {
	return &Poller{
		source:   source,
		interval: interval,
		handler:  handler,
		logger:   logger,
	}
}

func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.stopChan = make(chan struct{})
	p.wg.Add(1)

	go p.pollLoop(p.stopChan)

	p.logger.Info("Poller started", zap.Duration("interval", p.interval))

	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Poller stopped")
}

func (p *Poller) pollLoop(stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll drains transfers until the instrument reports no new data, at most
// one full scan per tick.
func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	for i := 0; i < types.NumSets; i++ {
		t, err := p.source.TransferData(ctx)
		if err != nil {
			p.logger.Error("Transfer failed", zap.Error(err))
			return
		}
		if t == nil {
			return
		}
		if p.handler != nil {
			p.handler(t)
		}
	}
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
