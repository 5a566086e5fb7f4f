package qbosync

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/sitelinehq/contractor_backend/models"
)

// ConnectionStore loads and persists the per-business QBO connection row.
type ConnectionStore interface {
	Get(businessId string) (*models.QboConnection, error)
	Save(conn *models.QboConnection) error
	UpdateTokens(conn *models.QboConnection) error
	Disconnect(businessId string) error
}

type gormConnectionStore struct {
	db func() *gorm.DB
}

func NewConnectionStore(db func() *gorm.DB) ConnectionStore {
	return &gormConnectionStore{db: db}
}

func (s *gormConnectionStore) Get(businessId string) (*models.QboConnection, error) {
	var conn models.QboConnection
	err := s.db().Where("business_id = ?", businessId).First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// Save upserts the connection for its business. Reconnecting replaces the
// credential set on the existing row rather than adding a second one.
func (s *gormConnectionStore) Save(conn *models.QboConnection) error {
	var existing models.QboConnection
	err := s.db().Where("business_id = ?", conn.BusinessId).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return s.db().Create(conn).Error
		}
		return err
	}
	conn.ID = existing.ID
	conn.CreatedAt = existing.CreatedAt
	return s.db().Save(conn).Error
}

func (s *gormConnectionStore) UpdateTokens(conn *models.QboConnection) error {
	return s.db().Model(&models.QboConnection{}).
		Where("id = ?", conn.ID).
		Updates(map[string]any{
			"access_token":             conn.AccessToken,
			"refresh_token":            conn.RefreshToken,
			"access_token_expires_at":  conn.AccessTokenExpiresAt,
			"refresh_token_expires_at": conn.RefreshTokenExpiresAt,
			"status":                   conn.Status,
		}).Error
}

func (s *gormConnectionStore) Disconnect(businessId string) error {
	return s.db().Model(&models.QboConnection{}).
		Where("business_id = ?", businessId).
		Updates(map[string]any{
			"status":        models.QboConnectionStatusDisconnected,
			"access_token":  "",
			"refresh_token": "",
		}).Error
}

// SyncLogStore appends audit rows. Callers treat failures as best-effort.
type SyncLogStore interface {
	Append(log *models.QboSyncLog) error
	List(businessId string, limit int, offset int) ([]*models.QboSyncLog, error)
}

type gormSyncLogStore struct {
	db func() *gorm.DB
}

func NewSyncLogStore(db func() *gorm.DB) SyncLogStore {
	return &gormSyncLogStore{db: db}
}

func (s *gormSyncLogStore) Append(log *models.QboSyncLog) error {
	return s.db().Create(log).Error
}

func (s *gormSyncLogStore) List(businessId string, limit int, offset int) ([]*models.QboSyncLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []*models.QboSyncLog
	err := s.db().Where("business_id = ?", businessId).
		Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, err
}

// SyncRunStore tracks bulk sync runs through their lifecycle.
type SyncRunStore interface {
	Create(run *models.QboSyncRun) error
	Get(businessId string, runId uint) (*models.QboSyncRun, error)
	List(businessId string, limit int, offset int) ([]*models.QboSyncRun, error)
	MarkRunning(runId uint) error
	Finish(runId uint, status string, stats SyncRunStats) error
}

// SyncRunStats summarizes one bulk run and is persisted as the run's
// stats JSON.
type SyncRunStats struct {
	Clients         int      `json:"clients"`
	Invoices        int      `json:"invoices"`
	InvoicePayments int      `json:"invoice_payments"`
	Expenses        int      `json:"expenses"`
	ExpensePayments int      `json:"expense_payments"`
	Errors          []string `json:"errors,omitempty"`
}

func (s SyncRunStats) synced() int {
	return s.Clients + s.Invoices + s.InvoicePayments + s.Expenses + s.ExpensePayments
}

type gormSyncRunStore struct {
	db func() *gorm.DB
}

func NewSyncRunStore(db func() *gorm.DB) SyncRunStore {
	return &gormSyncRunStore{db: db}
}

func (s *gormSyncRunStore) Create(run *models.QboSyncRun) error {
	return s.db().Create(run).Error
}

func (s *gormSyncRunStore) Get(businessId string, runId uint) (*models.QboSyncRun, error) {
	var run models.QboSyncRun
	err := s.db().Where("business_id = ? AND id = ?", businessId, runId).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *gormSyncRunStore) List(businessId string, limit int, offset int) ([]*models.QboSyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []*models.QboSyncRun
	err := s.db().Where("business_id = ?", businessId).
		Order("id DESC").Limit(limit).Offset(offset).Find(&runs).Error
	return runs, err
}

func (s *gormSyncRunStore) MarkRunning(runId uint) error {
	now := time.Now().UTC()
	return s.db().Model(&models.QboSyncRun{}).
		Where("id = ?", runId).
		Updates(map[string]any{
			"status":     models.QboSyncRunStatusRunning,
			"started_at": now,
		}).Error
}

func (s *gormSyncRunStore) Finish(runId uint, status string, stats SyncRunStats) error {
	statsJSON, _ := json.Marshal(stats)
	now := time.Now().UTC()

	var run models.QboSyncRun
	if err := s.db().Where("id = ?", runId).First(&run).Error; err != nil {
		return err
	}
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = now.Sub(*run.StartedAt).Milliseconds()
	}
	return s.db().Model(&models.QboSyncRun{}).
		Where("id = ?", runId).
		Updates(map[string]any{
			"status":         status,
			"stats_json":     statsJSON,
			"records_synced": stats.synced(),
			"error_count":    len(stats.Errors),
			"finished_at":    now,
			"duration_ms":    durationMs,
		}).Error
}

// EntitySource loads local entities for mapping and lists ids that have no
// ledger reference yet. Keeping it behind an interface lets the orchestrator
// run against in-memory data in tests.
type EntitySource interface {
	Client(businessId string, id int) (*models.Client, error)
	Expense(businessId string, id int) (*models.Expense, error)
	ExpensePayment(businessId string, id int) (*models.ExpensePayment, error)
	Invoice(businessId string, id int) (*models.ProjectInvoice, error)
	InvoicePayment(businessId string, id int) (*models.InvoicePayment, error)

	UnsyncedClientIds(businessId string) ([]int, error)
	UnsyncedInvoiceIds(businessId string) ([]int, error)
	UnsyncedInvoicePaymentIds(businessId string) ([]int, error)
	UnsyncedExpenseIds(businessId string) ([]int, error)
	UnsyncedExpensePaymentIds(businessId string) ([]int, error)
}

type gormEntitySource struct {
	db func() *gorm.DB
}

func NewEntitySource(db func() *gorm.DB) EntitySource {
	return &gormEntitySource{db: db}
}

func (s *gormEntitySource) Client(businessId string, id int) (*models.Client, error) {
	var client models.Client
	err := s.db().Where("business_id = ? AND id = ?", businessId, id).First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *gormEntitySource) Expense(businessId string, id int) (*models.Expense, error) {
	var expense models.Expense
	err := s.db().Where("business_id = ? AND id = ?", businessId, id).First(&expense).Error
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *gormEntitySource) ExpensePayment(businessId string, id int) (*models.ExpensePayment, error) {
	var payment models.ExpensePayment
	err := s.db().Where("business_id = ? AND id = ?", businessId, id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *gormEntitySource) Invoice(businessId string, id int) (*models.ProjectInvoice, error) {
	var invoice models.ProjectInvoice
	err := s.db().Preload("Details").
		Where("business_id = ? AND id = ?", businessId, id).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *gormEntitySource) InvoicePayment(businessId string, id int) (*models.InvoicePayment, error) {
	var payment models.InvoicePayment
	err := s.db().Where("business_id = ? AND id = ?", businessId, id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *gormEntitySource) unsyncedIds(table string, businessId string, entityType models.LocalEntityType) ([]int, error) {
	var ids []int
	err := s.db().Table(table).
		Select(table+".id").
		Joins("LEFT JOIN qbo_entity_references r ON r.business_id = "+table+".business_id AND r.entity_type = ? AND r.entity_id = CAST("+table+".id AS CHAR)", entityType).
		Where(table+".business_id = ? AND r.id IS NULL", businessId).
		Order(table + ".id ASC").
		Scan(&ids).Error
	return ids, err
}

func (s *gormEntitySource) UnsyncedClientIds(businessId string) ([]int, error) {
	return s.unsyncedIds("clients", businessId, models.LocalEntityClient)
}

func (s *gormEntitySource) UnsyncedInvoiceIds(businessId string) ([]int, error) {
	return s.unsyncedIds("project_invoices", businessId, models.LocalEntityInvoice)
}

func (s *gormEntitySource) UnsyncedInvoicePaymentIds(businessId string) ([]int, error) {
	return s.unsyncedIds("invoice_payments", businessId, models.LocalEntityInvoicePayment)
}

func (s *gormEntitySource) UnsyncedExpenseIds(businessId string) ([]int, error) {
	return s.unsyncedIds("expenses", businessId, models.LocalEntityExpense)
}

func (s *gormEntitySource) UnsyncedExpensePaymentIds(businessId string) ([]int, error) {
	return s.unsyncedIds("expense_payments", businessId, models.LocalEntityExpensePayment)
}
