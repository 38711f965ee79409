package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenantauth/auth-backend/internal/api/metrics"
	"github.com/tenantauth/auth-backend/internal/core/domain"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	jobTimeout     = 5 * time.Second
)

// OfflineJob marks whoever holds ConnectionID in Scope offline.
type OfflineJob struct {
	Scope        domain.Scope
	ConnectionID string
}

// Logouter is the slice of the auth core the workers need.
type Logouter interface {
	Logout(ctx context.Context, scope domain.Scope, connectionID string) error
}

// PresenceDispatcher runs offline transitions off the connection goroutines.
// Jobs are sharded by connection id, so the jobs of one connection run in
// order on one worker.
type PresenceDispatcher struct {
	workers []chan OfflineJob
	auth    Logouter
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPresenceDispatcher creates a dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewPresenceDispatcher(numWorkers int, auth Logouter, log zerolog.Logger) *PresenceDispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &PresenceDispatcher{
		workers: make([]chan OfflineJob, numWorkers),
		auth:    auth,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan OfflineJob, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled
// or after Stop has drained their channel.
func (d *PresenceDispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands a job to the worker owning its connection id. It returns
// false once the dispatcher is stopped or when the worker's buffer is full.
func (d *PresenceDispatcher) Enqueue(job OfflineJob) bool {
	if job.ConnectionID == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	idx := d.shardIndex(job.ConnectionID)
	select {
	case d.workers[idx] <- job:
	default:
		d.log.Warn().
			Str("connection_id", job.ConnectionID).
			Int("worker_id", idx).
			Msg("presence queue full, dropping offline update")
		return false
	}
	metrics.PresenceQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	return true
}

// Stop refuses new jobs and waits until queued ones are processed.
func (d *PresenceDispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// shardIndex maps a connection id deterministically to a worker index.
func (d *PresenceDispatcher) shardIndex(connectionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connectionID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *PresenceDispatcher) runWorker(ctx context.Context, id int, ch <-chan OfflineJob) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			metrics.PresenceQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.process(ctx, id, job)
		}
	}
}

func (d *PresenceDispatcher) process(ctx context.Context, id int, job OfflineJob) {
	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	if err := d.auth.Logout(jobCtx, job.Scope, job.ConnectionID); err != nil {
		d.log.Error().Err(err).
			Str("connection_id", job.ConnectionID).
			Str("scope", job.Scope.String()).
			Int("worker_id", id).
			Msg("presence offline update failed")
	}
}
