package models

import "time"

const (
	QboConnectionStatusConnected    = "connected"
	QboConnectionStatusDisconnected = "disconnected"
	QboConnectionStatusError        = "error"
)

const (
	QboSyncStatusSuccess = "success"
	QboSyncStatusError   = "error"
)

const (
	QboSyncRunStatusQueued  = "queued"
	QboSyncRunStatusRunning = "running"
	QboSyncRunStatusSuccess = "success"
	QboSyncRunStatusFailed  = "failed"
	QboSyncRunStatusPartial = "partial"
)

const (
	QboSyncTriggeredManual = "manual"
	QboSyncTriggeredRetry  = "retry"
	QboSyncTriggeredSystem = "system"
)

// QboConnection stores the OAuth2 credential set linking one business to
// exactly one QuickBooks Online company (realm). Unique on business_id:
// re-connecting overwrites the prior credential set, never adds a row.
type QboConnection struct {
	ID                   uint       `gorm:"primary_key" json:"id"`
	BusinessId           string     `gorm:"uniqueIndex;size:64;not null" json:"business_id"`
	RealmId              string     `gorm:"size:64;not null" json:"realm_id"`
	Status               string     `gorm:"size:20;not null" json:"status"`
	AccessToken          string     `gorm:"type:text" json:"-"`
	RefreshToken         string     `gorm:"type:text" json:"-"`
	AccessTokenExpiresAt time.Time  `json:"access_token_expires_at"`
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at"`
	LastSyncAt           *time.Time `json:"last_sync_at"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// QboEntityReference records that a local entity has been created in QBO.
// Unique on (business_id, entity_type, entity_id); rows are written once on
// a successful sync and never mutated. The unique constraint is the real
// concurrency guard: a racing insert surfaces as a duplicate-key error.
type QboEntityReference struct {
	ID            uint            `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"uniqueIndex:idx_qbo_entity_ref,priority:1;size:64;not null" json:"business_id"`
	EntityType    LocalEntityType `gorm:"uniqueIndex:idx_qbo_entity_ref,priority:2;size:50;not null" json:"entity_type"`
	EntityId      string          `gorm:"uniqueIndex:idx_qbo_entity_ref,priority:3;size:128;not null" json:"entity_id"`
	QboEntityId   string          `gorm:"size:128;not null" json:"qbo_entity_id"`
	QboEntityType QboEntityType   `gorm:"size:50;not null" json:"qbo_entity_type"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// QboSyncLog is the append-only audit trail. Writes are best-effort; a
// logging failure never fails the sync that produced it.
type QboSyncLog struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;size:64;not null" json:"business_id"`
	Action      string    `gorm:"size:100;not null" json:"action"`
	Status      string    `gorm:"size:20;not null" json:"status"`
	EntityType  string    `gorm:"size:50" json:"entity_type"`
	EntityId    string    `gorm:"size:128" json:"entity_id"`
	Detail      string    `gorm:"type:text" json:"detail"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// QboSyncRun tracks one bulk sync pass over a business's unsynced entities.
type QboSyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	BusinessId    string     `gorm:"index;not null" json:"business_id"`
	ConnectionId  uint       `gorm:"index;not null" json:"connection_id"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	ParentRunId   *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
