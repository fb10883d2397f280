// Package cleanup sweeps queued external-blob cleanup notices on a cron
// schedule. Deletion at the provider is best-effort: a failed delete
// leaves the notice queued for the next sweep, and correctness of
// capsule state never depends on the sweep at all.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/valyala/fasthttp"

	"capsuled/pkg/config"
	"capsuled/pkg/logger"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/telemetry"
)

// Deleter removes one external blob at its provider.
type Deleter interface {
	Delete(n *models.ExternalCleanupNotice) error
}

// HTTPDeleter issues DELETE requests against the notice URL. Notices
// without a URL cannot be handled here and stay queued for an operator.
type HTTPDeleter struct {
	client *fasthttp.Client
}

// NewHTTPDeleter builds the default production deleter.
func NewHTTPDeleter() *HTTPDeleter {
	return &HTTPDeleter{client: &fasthttp.Client{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

func (d *HTTPDeleter) Delete(n *models.ExternalCleanupNotice) error {
	if n.URL == "" {
		return fmt.Errorf("notice for %s/%s has no url", n.Provider, n.StorageKey)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.URL)
	req.Header.SetMethod(fasthttp.MethodDelete)
	if err := d.client.Do(req, resp); err != nil {
		return err
	}
	sc := resp.StatusCode()
	if sc == fasthttp.StatusNotFound {
		return nil // already gone at the provider
	}
	if sc < 200 || sc >= 300 {
		return fmt.Errorf("provider %s returned %d", n.Provider, sc)
	}
	return nil
}

// Start launches the sweep scheduler when enabled. Returns a cancel func.
func Start(ctx context.Context, cc config.CleanupConfig, d Deleter) (context.CancelFunc, error) {
	if !cc.Enabled {
		logger.Info("cleanup_disabled")
		return func() {}, nil
	}

	cronExpr := cc.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("cleanup_invalid_cron", "cron", cc.Cron)
		return nil, fmt.Errorf("invalid cleanup cron expression: %s", cc.Cron)
	}
	if d == nil {
		d = NewHTTPDeleter()
	}

	logger.Info("cleanup_enabled", "cron", cronExpr, "batch", cc.BatchSize, "dry_run", cc.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cc, cronExpr, d)
	return cancel, nil
}

func runScheduler(ctx context.Context, cc config.CleanupConfig, cronExpr string, d Deleter) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("cleanup_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("cleanup_scheduler_stopping")
			return
		}

		if err := RunOnce(cc, d); err != nil {
			logger.Error("cleanup_run_error", "error", err)
		}
	}
}

// RunOnce performs a single sweep over up to BatchSize queued notices.
// Exported so admin triggers and tests can run sweeps on demand.
func RunOnce(cc config.CleanupConfig, d Deleter) error {
	pending, err := store.ListExternalCleanup(cc.BatchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	logger.Info("cleanup_sweep_start", "pending", len(pending), "dry_run", cc.DryRun)

	var done, failed int
	for key, n := range pending {
		if cc.DryRun {
			logger.Info("cleanup_would_delete", "provider", n.Provider, "key", n.StorageKey, "memory", n.Memory)
			telemetry.CleanupNotices.WithLabelValues("dry_run").Inc()
			continue
		}
		if err := d.Delete(n); err != nil {
			failed++
			telemetry.CleanupNotices.WithLabelValues("failed").Inc()
			logger.Warn("cleanup_delete_failed", "provider", n.Provider, "key", n.StorageKey, "error", err)
			continue
		}
		if err := store.AckExternalCleanup(key); err != nil {
			logger.Warn("cleanup_ack_failed", "key", key, "error", err)
			continue
		}
		done++
		telemetry.CleanupNotices.WithLabelValues("done").Inc()
		logger.AuditEvent("external_blob_cleaned", "provider", n.Provider, "key", n.StorageKey, "memory", n.Memory)
	}

	logger.Info("cleanup_sweep_finished", "done", done, "failed", failed)
	return nil
}
