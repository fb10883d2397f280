package sharing

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"

	"capsuled/pkg/config"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/telemetry"
	"capsuled/pkg/utils"
)

// ErrOutboxFull is returned when the in-memory delivery queue is at
// capacity. The notice is still persisted and will go out after a reload.
var ErrOutboxFull = errors.New("sharing outbox full")

// maxPooledBuffer caps the buffer size returned to the pool so one large
// notice does not pin memory.
const maxPooledBuffer = 256 * 1024

// item is one queued delivery. buf owns the serialized payload when it
// came from the pool.
type item struct {
	storeKey string
	rec      *store.OutboxRecord
	buf      *bytebufferpool.ByteBuffer
	once     sync.Once
}

func (it *item) payload() []byte { return it.buf.B }

func (it *item) done() {
	it.once.Do(func() {
		if it.buf != nil && cap(it.buf.B) <= maxPooledBuffer {
			bytebufferpool.Put(it.buf)
		}
		it.buf = nil
	})
}

// Outbox is the async at-least-once delivery queue for invite notices.
// Every notice is persisted before it enters the channel, so pending
// deliveries survive restarts; Reload re-queues them.
type Outbox struct {
	tr          Transport
	ch          chan *item
	maxAttempts int
	backoff     time.Duration

	stop    chan struct{}
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

// NewOutbox builds an outbox over the given transport using the sharing
// config's outbox tuning.
func NewOutbox(tr Transport, oc config.OutboxConfig) *Outbox {
	capacity := oc.Capacity
	if capacity <= 0 {
		capacity = 1024
	}
	maxAttempts := oc.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	backoff := oc.RetryBackoff.Std()
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Outbox{
		tr:          tr,
		ch:          make(chan *item, capacity),
		maxAttempts: maxAttempts,
		backoff:     backoff,
		stop:        make(chan struct{}),
	}
}

// Enqueue persists the notice and hands it to the delivery workers. A
// full channel is not a failure for the caller: the record is on disk and
// will be picked up by the next Reload.
func (o *Outbox) Enqueue(targetCapsule string, n *models.InviteNotice) error {
	rec := &store.OutboxRecord{
		ID:       utils.GenInviteID(),
		Target:   targetCapsule,
		Notice:   *n,
		QueuedTS: utils.NowNano(),
	}
	key, err := store.SaveOutboxRecord(rec)
	if err != nil {
		return err
	}
	if err := o.push(key, rec); err != nil {
		logger.Warn("outbox_channel_full", "target", targetCapsule, "notice", rec.ID)
	}
	return nil
}

func (o *Outbox) push(key string, rec *store.OutboxRecord) error {
	payload, err := json.Marshal(rec.Notice)
	if err != nil {
		return err
	}
	buf := bytebufferpool.Get()
	buf.B = append(buf.B[:0], payload...)
	it := &item{storeKey: key, rec: rec, buf: buf}

	select {
	case o.ch <- it:
		telemetry.OutboxDepth.Inc()
		return nil
	default:
		it.done()
		return ErrOutboxFull
	}
}

// Reload re-queues persisted notices, oldest first. Call once at startup
// after opening the store.
func (o *Outbox) Reload() error {
	recs, err := store.ListOutboxRecords(0)
	if err != nil {
		return err
	}
	for key, rec := range recs {
		if err := o.push(key, rec); err != nil {
			// channel full; the rest stays on disk for the next reload
			logger.Warn("outbox_reload_truncated", "pending", len(recs))
			return nil
		}
	}
	if len(recs) > 0 {
		logger.Info("outbox_reloaded", "pending", len(recs))
	}
	return nil
}

// Start launches delivery workers.
func (o *Outbox) Start(workers int) {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if o.started {
		return
	}
	o.started = true
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
}

// Stop halts the workers. Undelivered notices stay persisted.
func (o *Outbox) Stop() {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if !o.started {
		return
	}
	close(o.stop)
	o.wg.Wait()
	o.started = false
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for {
		select {
		case it := <-o.ch:
			telemetry.OutboxDepth.Dec()
			o.deliver(it)
		case <-o.stop:
			return
		}
	}
}

// deliver attempts one delivery and either acks, schedules a retry, or
// drops after max attempts. Failures never propagate to the mutation that
// produced the notice.
func (o *Outbox) deliver(it *item) {
	err := o.tr.Deliver(it.rec.Target, it.payload())
	if err == nil {
		it.done()
		if err := store.AckOutboxRecord(it.storeKey); err != nil {
			logger.Warn("outbox_ack_failed", "key", it.storeKey, "error", err)
		}
		logger.Debug("notice_delivered", "target", it.rec.Target, "kind", it.rec.Notice.Kind)
		return
	}

	it.rec.Attempts++
	logger.Warn("notice_delivery_failed", "target", it.rec.Target, "kind", it.rec.Notice.Kind,
		"attempt", it.rec.Attempts, "error", err)

	if it.rec.Attempts >= o.maxAttempts {
		it.done()
		telemetry.OutboxDropped.Inc()
		if err := store.AckOutboxRecord(it.storeKey); err != nil {
			logger.Warn("outbox_ack_failed", "key", it.storeKey, "error", err)
		}
		logger.Error("notice_dropped", "target", it.rec.Target, "kind", it.rec.Notice.Kind, "attempts", it.rec.Attempts)
		return
	}

	telemetry.OutboxRetries.Inc()
	if _, err := store.SaveOutboxRecord(it.rec); err != nil {
		logger.Warn("outbox_persist_attempts_failed", "key", it.storeKey, "error", err)
	}

	// requeue after backoff without blocking the worker
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case <-time.After(o.backoff * time.Duration(it.rec.Attempts)):
		case <-o.stop:
			it.done()
			return
		}
		select {
		case o.ch <- it:
			telemetry.OutboxDepth.Inc()
		case <-o.stop:
			it.done()
		}
	}()
}

// Depth returns the number of notices currently in the channel.
func (o *Outbox) Depth() int { return len(o.ch) }
