package qbosync

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/sitelinehq/contractor_backend/models"
)

// Ledger records which local entities have already been pushed to QBO.
// References are insert-only: once a (businessId, entityType, entityId)
// row exists it is never mutated, so the first writer wins and every
// later caller sees the same mapping.
type Ledger interface {
	// Find returns the reference for the local entity, or
	// gorm.ErrRecordNotFound when it has never been synced.
	Find(businessId string, entityType models.LocalEntityType, entityId string) (*models.QboEntityReference, error)

	// Store inserts a new reference. When a concurrent writer got there
	// first, Store re-reads the winning row: if it carries the same
	// QboEntityId the insert is treated as a no-op and the winner is
	// returned; if it differs, the winner is returned together with a
	// *DuplicateReferenceError describing the orphaned QBO record.
	Store(businessId string, entityType models.LocalEntityType, entityId string, qboType models.QboEntityType, qboId string) (*models.QboEntityReference, error)

	// FindByEntityIds bulk-loads references for a set of local ids of one
	// type, keyed by entity id. Missing ids are simply absent from the map.
	FindByEntityIds(businessId string, entityType models.LocalEntityType, entityIds []string) (map[string]*models.QboEntityReference, error)
}

type gormLedger struct {
	db func() *gorm.DB
}

func NewLedger(db func() *gorm.DB) Ledger {
	return &gormLedger{db: db}
}

func (l *gormLedger) Find(businessId string, entityType models.LocalEntityType, entityId string) (*models.QboEntityReference, error) {
	var ref models.QboEntityReference
	err := l.db().Where("business_id = ? AND entity_type = ? AND entity_id = ?",
		businessId, entityType, entityId).First(&ref).Error
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (l *gormLedger) Store(businessId string, entityType models.LocalEntityType, entityId string, qboType models.QboEntityType, qboId string) (*models.QboEntityReference, error) {
	ref := models.QboEntityReference{
		BusinessId:    businessId,
		EntityType:    entityType,
		EntityId:      entityId,
		QboEntityType: qboType,
		QboEntityId:   qboId,
	}
	err := l.db().Create(&ref).Error
	if err == nil {
		return &ref, nil
	}
	if !isDuplicateKeyErr(err) {
		return nil, err
	}

	// Lost the race. The existing row wins unconditionally.
	winner, findErr := l.Find(businessId, entityType, entityId)
	if findErr != nil {
		return nil, findErr
	}
	if winner.QboEntityId == qboId {
		return winner, nil
	}
	return winner, &DuplicateReferenceError{
		EntityType:   entityType,
		EntityId:     entityId,
		WinningQboId: winner.QboEntityId,
		OrphanQboId:  qboId,
	}
}

func (l *gormLedger) FindByEntityIds(businessId string, entityType models.LocalEntityType, entityIds []string) (map[string]*models.QboEntityReference, error) {
	result := make(map[string]*models.QboEntityReference, len(entityIds))
	if len(entityIds) == 0 {
		return result, nil
	}
	var refs []*models.QboEntityReference
	err := l.db().Where("business_id = ? AND entity_type = ? AND entity_id IN ?",
		businessId, entityType, entityIds).Find(&refs).Error
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		result[ref.EntityId] = ref
	}
	return result, nil
}

// isDuplicateKeyErr reports whether err is a MySQL 1062 unique constraint
// violation.
func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
