package qbosync

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/sitelinehq/contractor_backend/config"
	"github.com/sitelinehq/contractor_backend/models"
)

const moduleName = "qbosync"

// apiCreator is the slice of Client the orchestrator needs. Tests swap in a
// recording fake.
type apiCreator interface {
	Create(ctx context.Context, realmId string, resource string, accessToken string, payload any) (string, json.RawMessage, error)
}

// tokenProvider is the slice of TokenStore the orchestrator needs.
type tokenProvider interface {
	Connection(businessId string) (*models.QboConnection, error)
	ValidAccessToken(ctx context.Context, businessId string) (string, error)
	ForceRefresh(ctx context.Context, businessId string, staleToken string) (string, error)
}

// Syncer pushes local entities to QBO in dependency order. Every push runs
// the same state machine: ledger check, per-entity lock, ledger re-check,
// dependency ensure, map, create, record. All collaborators are injected
// once at construction.
type Syncer struct {
	tokens tokenProvider
	ledger Ledger
	api    apiCreator
	source EntitySource
	syncLogs   SyncLogStore
	mapper *Mapper
	logger *logrus.Logger

	// locker serializes syncs of the same entity across instances. Resolved
	// lazily because redis connects after the HTTP listener is up. Optional;
	// the in-process mutex map still guards a single instance when absent.
	locker func() *redislock.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSyncer(tokens *TokenStore, ledger Ledger, api *Client, source EntitySource, syncLogs SyncLogStore, mapper *Mapper, locker func() *redislock.Client) *Syncer {
	return &Syncer{
		tokens:   tokens,
		ledger:   ledger,
		api:      api,
		source:   source,
		syncLogs: syncLogs,
		mapper:   mapper,
		logger:   config.GetLogger(),
		locker:   locker,
		locks:    map[string]*sync.Mutex{},
	}
}

// newSyncerForTest wires fakes behind the same state machine.
func newSyncerForTest(tokens tokenProvider, ledger Ledger, api apiCreator, source EntitySource, syncLogs SyncLogStore, mapper *Mapper) *Syncer {
	return &Syncer{
		tokens:   tokens,
		ledger:   ledger,
		api:      api,
		source:   source,
		syncLogs: syncLogs,
		mapper:   mapper,
		logger:   config.GetLogger(),
		locks:    map[string]*sync.Mutex{},
	}
}

// SyncClient pushes a client as a QBO Customer.
func (s *Syncer) SyncClient(ctx context.Context, businessId string, clientId int) (*models.QboEntityReference, error) {
	return s.syncEntity(ctx, businessId, models.LocalEntityClient, strconv.Itoa(clientId),
		"customer", models.QboEntityCustomer, func() (any, error) {
			client, err := s.source.Client(businessId, clientId)
			if err != nil {
				return nil, err
			}
			return s.mapper.MapClient(client)
		})
}

// SyncExpense pushes an expense as a QBO Bill, ensuring its payee exists as
// a QBO Vendor first.
func (s *Syncer) SyncExpense(ctx context.Context, businessId string, expenseId int) (*models.QboEntityReference, error) {
	return s.syncEntity(ctx, businessId, models.LocalEntityExpense, strconv.Itoa(expenseId),
		"bill", models.QboEntityBill, func() (any, error) {
			expense, err := s.source.Expense(businessId, expenseId)
			if err != nil {
				return nil, err
			}
			vendorRef, err := s.ensureVendor(ctx, businessId, expense.Payee)
			if err != nil {
				return nil, &DependencyError{EntityType: models.LocalEntityVendor, EntityId: expense.Payee, Err: err}
			}
			return s.mapper.MapExpense(expense, vendorRef.QboEntityId)
		})
}

// SyncExpensePayment pushes an expense payment as a QBO BillPayment,
// ensuring both the vendor and the bill exist first.
func (s *Syncer) SyncExpensePayment(ctx context.Context, businessId string, paymentId int) (*models.QboEntityReference, error) {
	return s.syncEntity(ctx, businessId, models.LocalEntityExpensePayment, strconv.Itoa(paymentId),
		"billpayment", models.QboEntityBillPayment, func() (any, error) {
			payment, err := s.source.ExpensePayment(businessId, paymentId)
			if err != nil {
				return nil, err
			}
			expense, err := s.source.Expense(businessId, payment.ExpenseId)
			if err != nil {
				return nil, err
			}
			billRef, err := s.SyncExpense(ctx, businessId, payment.ExpenseId)
			if err != nil {
				return nil, &DependencyError{EntityType: models.LocalEntityExpense, EntityId: strconv.Itoa(payment.ExpenseId), Err: err}
			}
			vendorRef, err := s.ensureVendor(ctx, businessId, expense.Payee)
			if err != nil {
				return nil, &DependencyError{EntityType: models.LocalEntityVendor, EntityId: expense.Payee, Err: err}
			}
			return s.mapper.MapExpensePayment(payment, vendorRef.QboEntityId, billRef.QboEntityId)
		})
}

// SyncInvoice pushes a project invoice as a QBO Invoice, ensuring its client
// exists as a QBO Customer first.
func (s *Syncer) SyncInvoice(ctx context.Context, businessId string, invoiceId int) (*models.QboEntityReference, error) {
	return s.syncEntity(ctx, businessId, models.LocalEntityInvoice, strconv.Itoa(invoiceId),
		"invoice", models.QboEntityInvoice, func() (any, error) {
			invoice, err := s.source.Invoice(businessId, invoiceId)
			if err != nil {
				return nil, err
			}
			customerRef, err := s.SyncClient(ctx, businessId, invoice.ClientId)
			if err != nil {
				return nil, &DependencyError{EntityType: models.LocalEntityClient, EntityId: strconv.Itoa(invoice.ClientId), Err: err}
			}
			return s.mapper.MapInvoice(invoice, customerRef.QboEntityId)
		})
}

// SyncInvoicePayment pushes an invoice payment as a QBO Payment, ensuring
// both the customer and the invoice exist first.
func (s *Syncer) SyncInvoicePayment(ctx context.Context, businessId string, paymentId int) (*models.QboEntityReference, error) {
	return s.syncEntity(ctx, businessId, models.LocalEntityInvoicePayment, strconv.Itoa(paymentId),
		"payment", models.QboEntityPayment, func() (any, error) {
			payment, err := s.source.InvoicePayment(businessId, paymentId)
			if err != nil {
				return nil, err
			}
			invoiceRef, err := s.SyncInvoice(ctx, businessId, payment.InvoiceId)
			if err != nil {
				return nil, &DependencyError{EntityType: models.LocalEntityInvoice, EntityId: strconv.Itoa(payment.InvoiceId), Err: err}
			}
			customerRef, err := s.SyncClient(ctx, businessId, payment.ClientId)
			if err != nil {
				return nil, &DependencyError{EntityType: models.LocalEntityClient, EntityId: strconv.Itoa(payment.ClientId), Err: err}
			}
			return s.mapper.MapInvoicePayment(payment, customerRef.QboEntityId, invoiceRef.QboEntityId)
		})
}

// ensureVendor syncs the vendor derived from an expense payee. The payee
// name is the local id; two expenses with the same payee share one QBO
// Vendor.
func (s *Syncer) ensureVendor(ctx context.Context, businessId string, payee string) (*models.QboEntityReference, error) {
	return s.syncEntity(ctx, businessId, models.LocalEntityVendor, payee,
		"vendor", models.QboEntityVendor, func() (any, error) {
			return s.mapper.MapVendor(payee)
		})
}

// syncEntity is the single state machine behind every sync operation.
// buildPayload runs under the entity lock and is where dependency syncs and
// mapping happen, so a dependency failure never reaches the API.
func (s *Syncer) syncEntity(ctx context.Context, businessId string, entityType models.LocalEntityType, entityId string, resource string, qboType models.QboEntityType, buildPayload func() (any, error)) (*models.QboEntityReference, error) {
	// Fast path: already synced, no lock needed. Runs ahead of the
	// connection check on purpose: a synced entity's no-op stays a no-op
	// even after the business disconnects QuickBooks.
	if ref, err := s.ledger.Find(businessId, entityType, entityId); err == nil {
		return ref, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conn, err := s.tokens.Connection(businessId)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockEntity(ctx, businessId, entityType, entityId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Re-check under the lock: a concurrent sync may have finished while we
	// were waiting.
	if ref, err := s.ledger.Find(businessId, entityType, entityId); err == nil {
		return ref, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	payload, err := buildPayload()
	if err != nil {
		s.logFailure(businessId, entityType, entityId, payload, err)
		return nil, err
	}

	accessToken, err := s.tokens.ValidAccessToken(ctx, businessId)
	if err != nil {
		s.logFailure(businessId, entityType, entityId, payload, err)
		return nil, err
	}

	qboId, _, err := s.api.Create(ctx, conn.RealmId, resource, accessToken, payload)
	if err != nil && isUnauthorized(err) {
		// The provider rejected a token we believed valid. Refresh once and
		// retry once; a second 401 is terminal.
		accessToken, err = s.tokens.ForceRefresh(ctx, businessId, accessToken)
		if err == nil {
			qboId, _, err = s.api.Create(ctx, conn.RealmId, resource, accessToken, payload)
		}
	}
	if err != nil {
		s.logFailure(businessId, entityType, entityId, payload, err)
		return nil, err
	}

	ref, err := s.ledger.Store(businessId, entityType, entityId, qboType, qboId)
	if err != nil {
		var dup *DuplicateReferenceError
		if errors.As(err, &dup) {
			// Lost the insert race after creating a QBO record. The winner's
			// mapping stands; ours is an orphan in QBO that must stay
			// visible in the audit trail.
			s.logger.WithFields(logrus.Fields{
				"business_id": businessId,
				"entity_type": entityType,
				"entity_id":   entityId,
				"winner_id":   dup.WinningQboId,
				"orphan_id":   dup.OrphanQboId,
			}).Warn("duplicate qbo reference; orphan created")
			s.appendLog(&models.QboSyncLog{
				BusinessId: businessId,
				Action:     "sync_" + string(entityType),
				Status:     models.QboSyncStatusError,
				EntityType: string(entityType),
				EntityId:   entityId,
				Detail:     dup.Error(),
			})
			return ref, nil
		}
		s.logFailure(businessId, entityType, entityId, payload, err)
		return nil, err
	}

	s.appendLog(&models.QboSyncLog{
		BusinessId:  businessId,
		Action:      "sync_" + string(entityType),
		Status:      models.QboSyncStatusSuccess,
		EntityType:  string(entityType),
		EntityId:    entityId,
		Detail:      "created qbo " + string(qboType) + " " + qboId,
		PayloadJSON: marshalPayload(payload),
	})
	return ref, nil
}

// lockEntity serializes work on one (business, type, id) tuple. The
// in-process mutex map covers one instance; when a redislock client is
// configured it extends the guard across instances.
func (s *Syncer) lockEntity(ctx context.Context, businessId string, entityType models.LocalEntityType, entityId string) (func(), error) {
	key := "qbosync:lock:" + businessId + ":" + string(entityType) + ":" + entityId

	s.mu.Lock()
	local, ok := s.locks[key]
	if !ok {
		local = &sync.Mutex{}
		s.locks[key] = local
	}
	s.mu.Unlock()
	local.Lock()

	var locker *redislock.Client
	if s.locker != nil {
		locker = s.locker()
	}
	if locker == nil {
		return local.Unlock, nil
	}

	dist, err := locker.Obtain(ctx, key, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(200*time.Millisecond), 50),
	})
	if err != nil {
		local.Unlock()
		return nil, err
	}
	return func() {
		if err := dist.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(s.logger, moduleName, "lockEntity", "release", key, err)
		}
		local.Unlock()
	}, nil
}

func (s *Syncer) logFailure(businessId string, entityType models.LocalEntityType, entityId string, payload any, cause error) {
	s.appendLog(&models.QboSyncLog{
		BusinessId:  businessId,
		Action:      "sync_" + string(entityType),
		Status:      models.QboSyncStatusError,
		EntityType:  string(entityType),
		EntityId:    entityId,
		Detail:      cause.Error(),
		PayloadJSON: marshalPayload(payload),
	})
}

// appendLog is best-effort: an audit write failure is logged and swallowed,
// never failing the sync it describes.
func (s *Syncer) appendLog(row *models.QboSyncLog) {
	if s.syncLogs == nil {
		return
	}
	if err := s.syncLogs.Append(row); err != nil {
		config.LogError(s.logger, moduleName, "appendLog", row.Action, row.EntityId, err)
	}
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 401
}

func marshalPayload(payload any) []byte {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return raw
}

// SyncStatus summarizes a business's QBO link for the status endpoint.
type SyncStatus struct {
	Connected             bool       `json:"connected"`
	RealmId               string     `json:"realm_id,omitempty"`
	Status                string     `json:"status"`
	LastSyncAt            *time.Time `json:"last_sync_at,omitempty"`
	AccessTokenExpiresAt  *time.Time `json:"access_token_expires_at,omitempty"`
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at,omitempty"`
	UnsyncedClients         int `json:"unsynced_clients"`
	UnsyncedInvoices        int `json:"unsynced_invoices"`
	UnsyncedInvoicePayments int `json:"unsynced_invoice_payments"`
	UnsyncedExpenses        int `json:"unsynced_expenses"`
	UnsyncedExpensePayments int `json:"unsynced_expense_payments"`
}

// EntitySyncStatus reports whether a single local entity has been pushed to
// QuickBooks, and if so under which QuickBooks id.
type EntitySyncStatus struct {
	EntityType models.LocalEntityType `json:"entity_type"`
	EntityId   string                 `json:"entity_id"`
	Synced     bool                   `json:"synced"`
	QboId      string                 `json:"qbo_id,omitempty"`
	QboType    models.QboEntityType   `json:"qbo_type,omitempty"`
	SyncedAt   *time.Time             `json:"synced_at,omitempty"`
}

func (s *Syncer) GetEntitySyncStatus(businessId string, entityType models.LocalEntityType, entityId string) (*EntitySyncStatus, error) {
	status := &EntitySyncStatus{EntityType: entityType, EntityId: entityId}
	ref, err := s.ledger.Find(businessId, entityType, entityId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return status, nil
		}
		return nil, err
	}
	status.Synced = true
	status.QboId = ref.QboEntityId
	status.QboType = ref.QboEntityType
	status.SyncedAt = &ref.CreatedAt
	return status, nil
}

// GetSyncStatus reports connection state plus how much local data is still
// waiting to be pushed. A missing connection is a valid status, not an
// error.
func (s *Syncer) GetSyncStatus(businessId string) (*SyncStatus, error) {
	status := &SyncStatus{Status: models.QboConnectionStatusDisconnected}

	conn, err := s.tokens.Connection(businessId)
	if err != nil {
		if errors.Is(err, ErrNoConnection) {
			return status, nil
		}
		return nil, err
	}
	status.Connected = conn.Status == models.QboConnectionStatusConnected
	status.RealmId = conn.RealmId
	status.Status = conn.Status
	status.LastSyncAt = conn.LastSyncAt
	status.AccessTokenExpiresAt = &conn.AccessTokenExpiresAt
	status.RefreshTokenExpiresAt = conn.RefreshTokenExpiresAt

	counts := []struct {
		load func(string) ([]int, error)
		dst  *int
	}{
		{s.source.UnsyncedClientIds, &status.UnsyncedClients},
		{s.source.UnsyncedInvoiceIds, &status.UnsyncedInvoices},
		{s.source.UnsyncedInvoicePaymentIds, &status.UnsyncedInvoicePayments},
		{s.source.UnsyncedExpenseIds, &status.UnsyncedExpenses},
		{s.source.UnsyncedExpensePaymentIds, &status.UnsyncedExpensePayments},
	}
	for _, c := range counts {
		ids, err := c.load(businessId)
		if err != nil {
			return nil, err
		}
		*c.dst = len(ids)
	}
	return status, nil
}
