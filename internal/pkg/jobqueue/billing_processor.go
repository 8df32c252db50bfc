package jobqueue

import (
	"context"
	"strconv"
	"time"

	"github.com/ConradBeck/ReelForge/internal/pkg/billing"
	"github.com/ConradBeck/ReelForge/internal/pkg/database"
	"github.com/ConradBeck/ReelForge/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

const (
	defaultSweepGraceHours     = 48
	defaultEventRetentionHours = 24 * 30
)

// processBillingSweepJob cancels subscriptions stuck in incomplete/pending
// past the grace period. Abandoned checkouts never receive a completing
// event, so without the sweep those rows would stay open forever.
func (q *Queue) processBillingSweepJob(_ context.Context, job *Job) error {
	grace := time.Duration(envHours("BILLING_SWEEP_GRACE_HOURS", defaultSweepGraceHours)) * time.Hour
	if raw, ok := job.Payload["grace_hours"].(float64); ok && raw > 0 {
		grace = time.Duration(raw) * time.Hour
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	canceled, err := svc.SweepStaleOpenSubscriptions(grace)
	if err != nil {
		return err
	}
	if canceled > 0 {
		log.Infof("[JobQueue] Billing sweep canceled %d stale subscriptions", canceled)
	}
	return nil
}

// processEventPruneJob removes idempotency records older than the retention
// window. The upstream redelivery window is bounded, so pruned events can no
// longer be redelivered.
func (q *Queue) processEventPruneJob(_ context.Context, job *Job) error {
	retention := time.Duration(envHours("BILLING_EVENT_RETENTION_HOURS", defaultEventRetentionHours)) * time.Hour
	if raw, ok := job.Payload["retention_hours"].(float64); ok && raw > 0 {
		retention = time.Duration(raw) * time.Hour
	}

	repo := billing.NewRepository(database.GetDB())
	pruned, err := repo.DeleteProcessedEventsBefore(time.Now().Add(-retention))
	if err != nil {
		return err
	}
	if pruned > 0 {
		log.Infof("[JobQueue] Pruned %d processed webhook events", pruned)
	}
	return nil
}

func envHours(key string, def int) int {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return def
	}
	return hours
}
