package qbosync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sitelinehq/contractor_backend/config"
	"github.com/sitelinehq/contractor_backend/models"
	"github.com/sitelinehq/contractor_backend/utils"
)

// Worker executes queued bulk sync runs. A run walks every unsynced entity
// in dependency order: clients first, then invoices and invoice payments,
// then expenses and expense payments. Any failure is recorded against the
// run and the walk continues; one bad invoice must not strand the rest of
// the backlog.
type Worker struct {
	syncer *Syncer
	tokens tokenProvider
	conns  ConnectionStore
	source EntitySource
	runs   SyncRunStore
	db     func() *gorm.DB
}

func NewWorker(syncer *Syncer, tokens *TokenStore, conns ConnectionStore, source EntitySource, runs SyncRunStore, db func() *gorm.DB) *Worker {
	return &Worker{
		syncer: syncer,
		tokens: tokens,
		conns:  conns,
		source: source,
		runs:   runs,
		db:     db,
	}
}

func (w *Worker) ProcessSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 || payload.BusinessId == "" {
		return errors.New("invalid payload")
	}

	ctx = utils.SetBusinessIdInContext(ctx, payload.BusinessId)

	run, err := w.runs.Get(payload.BusinessId, payload.RunId)
	if err != nil {
		return err
	}
	// Pub/Sub is at-least-once; a finished run must absorb redelivery.
	if run.Status == models.QboSyncRunStatusSuccess ||
		run.Status == models.QboSyncRunStatusFailed ||
		run.Status == models.QboSyncRunStatusPartial {
		return nil
	}

	if _, err := w.tokens.Connection(payload.BusinessId); err != nil {
		finishErr := w.runs.Finish(run.ID, models.QboSyncRunStatusFailed, SyncRunStats{
			Errors: []string{err.Error()},
		})
		if finishErr != nil {
			return finishErr
		}
		return err
	}

	if err := w.runs.MarkRunning(run.ID); err != nil {
		return err
	}

	stats := SyncRunStats{}
	batches := []struct {
		name    string
		counter *int
		listIds func(string) ([]int, error)
		sync    func(context.Context, string, int) (*models.QboEntityReference, error)
	}{
		{"client", &stats.Clients, w.source.UnsyncedClientIds, w.syncer.SyncClient},
		{"invoice", &stats.Invoices, w.source.UnsyncedInvoiceIds, w.syncer.SyncInvoice},
		{"invoice_payment", &stats.InvoicePayments, w.source.UnsyncedInvoicePaymentIds, w.syncer.SyncInvoicePayment},
		{"expense", &stats.Expenses, w.source.UnsyncedExpenseIds, w.syncer.SyncExpense},
		{"expense_payment", &stats.ExpensePayments, w.source.UnsyncedExpensePaymentIds, w.syncer.SyncExpensePayment},
	}
	for _, batch := range batches {
		if fatal := w.syncBatch(ctx, payload.BusinessId, &stats, batch.counter, batch.name, batch.listIds, batch.sync); fatal {
			break
		}
	}

	status := models.QboSyncRunStatusSuccess
	if len(stats.Errors) > 0 {
		status = models.QboSyncRunStatusPartial
		if stats.synced() == 0 {
			status = models.QboSyncRunStatusFailed
		}
	}
	if err := w.runs.Finish(run.ID, status, stats); err != nil {
		return err
	}

	if status != models.QboSyncRunStatusFailed && w.db != nil {
		now := time.Now().UTC()
		if err := w.db().Model(&models.QboConnection{}).
			Where("business_id = ?", payload.BusinessId).
			Update("last_sync_at", now).Error; err != nil {
			config.LogError(config.GetLogger(), moduleName, "ProcessSyncRun", "last_sync_at", payload.BusinessId, err)
		}
	}
	return nil
}

// syncBatch walks one entity type's backlog. It reports fatal=true when the
// run should stop entirely: a dead authorization fails everything after it,
// so grinding through the backlog would only collect the same error.
func (w *Worker) syncBatch(ctx context.Context, businessId string, stats *SyncRunStats, counter *int, entityName string,
	listIds func(string) ([]int, error),
	sync func(context.Context, string, int) (*models.QboEntityReference, error)) bool {

	ids, err := listIds(businessId)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("list %ss: %v", entityName, err))
		return false
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s %d: %v", entityName, id, ctx.Err()))
			return true
		}
		if _, err := sync(ctx, businessId, id); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s %d: %v", entityName, id, err))

			var refreshErr *TokenRefreshError
			if errors.As(err, &refreshErr) || errors.Is(err, ErrNoConnection) {
				return true
			}
			continue
		}
		*counter++
	}
	return false
}
