package jobqueue

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Manager manages the global job queue and periodic billing maintenance
type Manager struct {
	queue       *Queue
	sweepTicker *time.Ticker
	pruneTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:  NewQueue(2),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and the periodic maintenance tickers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	// Stale-subscription sweep runs hourly, event pruning daily.
	m.sweepTicker = time.NewTicker(1 * time.Hour)
	m.pruneTicker = time.NewTicker(24 * time.Hour)

	m.wg.Add(1)
	go m.maintenanceWorker()
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping...")
	close(m.stopCh)
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.pruneTicker != nil {
		m.pruneTicker.Stop()
	}
	m.wg.Wait()
	m.queue.Stop()
	m.running = false
	log.Info("[JobQueue Manager] Stopped")
}

func (m *Manager) maintenanceWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.sweepTicker.C:
			if _, err := m.queue.EnqueueJob(JobTypeBillingSweep, nil); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue billing sweep: %v", err)
			}
		case <-m.pruneTicker.C:
			if _, err := m.queue.EnqueueJob(JobTypeEventPrune, nil); err != nil {
				log.Errorf("[JobQueue Manager] Failed to enqueue event prune: %v", err)
			}
		}
	}
}
