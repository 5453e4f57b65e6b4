package processing

import (
	"sync"
	"time"

	customlog "github.com/open-teleop/rover/pkg/log"
)

// Message is one unit of work queued on a pool.
type Message struct {
	Topic      string
	Data       []byte
	ReceivedAt time.Time
}

// ProcessResult is the result of processing a message
type ProcessResult struct {
	Topic      string
	Data       map[string]interface{}
	ReceivedAt time.Time
	Error      error
}

// ResultHandler is a function that handles processed results
type ResultHandler func(result *ProcessResult)

// MessageProcessor processes messages in a worker
type MessageProcessor func(msg *Message) (map[string]interface{}, error)

// ProcessingPool is a fixed set of workers draining a bounded queue. When
// the queue is full new messages are dropped rather than blocking the caller.
type ProcessingPool struct {
	name          string
	workerCount   int
	queueSize     int
	logger        customlog.Logger
	queue         chan *Message
	running       bool
	stopped       bool
	wg            sync.WaitGroup
	mu            sync.Mutex
	processor     MessageProcessor
	resultHandler ResultHandler
	metrics       *PoolMetrics
}

// PoolMetrics tracks metrics for a processing pool
type PoolMetrics struct {
	ProcessedCount    int64 `json:"processed"`
	ErrorCount        int64 `json:"errors"`
	QueuedCount       int64 `json:"queued"`
	DroppedCount      int64 `json:"dropped"`
	LastProcessedTime int64 `json:"last_processed_ns"`
	ProcessingTimeAvg int64 `json:"avg_us"` // in microseconds
	ProcessingTimeMax int64 `json:"max_us"` // in microseconds
	mu                sync.Mutex
}

// NewProcessingPool creates a new processing pool
func NewProcessingPool(name string, workerCount, queueSize int, logger customlog.Logger) *ProcessingPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &ProcessingPool{
		name:        name,
		workerCount: workerCount,
		queueSize:   queueSize,
		logger:      logger,
		queue:       make(chan *Message, queueSize),
		metrics:     &PoolMetrics{},
	}
}

// SetProcessor sets the message processor function
func (p *ProcessingPool) SetProcessor(processor MessageProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processor = processor
}

// SetResultHandler sets the result handler function
func (p *ProcessingPool) SetResultHandler(handler ResultHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resultHandler = handler
}

// Submit queues msg without blocking. It returns false when the pool is not
// running or the queue is full.
func (p *ProcessingPool) Submit(msg *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.logger.Debugf("%s pool not running, discarding message", p.name)
		return false
	}

	select {
	case p.queue <- msg:
		p.metrics.mu.Lock()
		p.metrics.QueuedCount++
		p.metrics.mu.Unlock()
		return true
	default:
		p.metrics.mu.Lock()
		p.metrics.DroppedCount++
		p.metrics.mu.Unlock()
		p.logger.Debugf("%s pool queue is full, discarding message", p.name)
		return false
	}
}

// Start starts the processing pool workers
func (p *ProcessingPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.stopped {
		return
	}

	p.running = true
	p.logger.Infof("Starting %s pool with %d workers", p.name, p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop drains the queue and waits for the workers. A stopped pool cannot
// be restarted.
func (p *ProcessingPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stopped = true
	// Submit holds mu while sending, so no send can race this close.
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logMetrics()
}

func (p *ProcessingPool) worker(id int) {
	defer p.wg.Done()

	for msg := range p.queue {
		p.mu.Lock()
		processor := p.processor
		resultHandler := p.resultHandler
		p.mu.Unlock()

		if processor == nil {
			p.logger.Errorf("No message processor set for %s pool", p.name)
			continue
		}

		startTime := time.Now()
		result, err := processor(msg)
		p.record(time.Since(startTime).Microseconds(), err)

		if err != nil {
			p.logger.Warnf("%s pool worker %d: %v", p.name, id, err)
		}
		if resultHandler != nil {
			resultHandler(&ProcessResult{
				Topic:      msg.Topic,
				Data:       result,
				ReceivedAt: msg.ReceivedAt,
				Error:      err,
			})
		}
	}
}

func (p *ProcessingPool) record(processingTime int64, err error) {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	p.metrics.ProcessedCount++
	p.metrics.LastProcessedTime = time.Now().UnixNano()
	if p.metrics.ProcessingTimeAvg == 0 {
		p.metrics.ProcessingTimeAvg = processingTime
	} else {
		// Simple moving average
		p.metrics.ProcessingTimeAvg = (p.metrics.ProcessingTimeAvg + processingTime) / 2
	}
	if processingTime > p.metrics.ProcessingTimeMax {
		p.metrics.ProcessingTimeMax = processingTime
	}
	if err != nil {
		p.metrics.ErrorCount++
	}
}

// GetMetrics returns a copy of the current metrics
func (p *ProcessingPool) GetMetrics() PoolMetrics {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	return PoolMetrics{
		ProcessedCount:    p.metrics.ProcessedCount,
		ErrorCount:        p.metrics.ErrorCount,
		QueuedCount:       p.metrics.QueuedCount,
		DroppedCount:      p.metrics.DroppedCount,
		LastProcessedTime: p.metrics.LastProcessedTime,
		ProcessingTimeAvg: p.metrics.ProcessingTimeAvg,
		ProcessingTimeMax: p.metrics.ProcessingTimeMax,
	}
}

func (p *ProcessingPool) logMetrics() {
	m := p.GetMetrics()
	p.logger.Infof("%s pool stopped: processed=%d, errors=%d, dropped=%d, avg_time=%dµs, max_time=%dµs",
		p.name, m.ProcessedCount, m.ErrorCount, m.DroppedCount, m.ProcessingTimeAvg, m.ProcessingTimeMax)
}

// GetQueueLength returns the current length of the queue
func (p *ProcessingPool) GetQueueLength() int {
	return len(p.queue)
}

// GetQueueCapacity returns the capacity of the queue
func (p *ProcessingPool) GetQueueCapacity() int {
	return p.queueSize
}
