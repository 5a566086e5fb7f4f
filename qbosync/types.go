package qbosync

import (
	"encoding/json"
	"time"

	"github.com/sitelinehq/contractor_backend/models"
)

type ConnectRequest struct {
	Code        string `json:"code" validate:"required"`
	RedirectUri string `json:"redirectUri"`
	RealmId     string `json:"realmId" validate:"required"`
}

type ConnectionResponse struct {
	Status     string  `json:"status"`
	RealmId    string  `json:"realmId,omitempty"`
	LastSyncAt *string `json:"lastSyncAt,omitempty"`
}

type SyncEntityRequest struct {
	Id int `json:"id" binding:"required"`
}

type SyncEntityResponse struct {
	EntityType string `json:"entityType"`
	EntityId   string `json:"entityId"`
	QboId      string `json:"qboId"`
	QboType    string `json:"qboType"`
}

type TriggerSyncRequest struct {
	TriggeredBy string `json:"triggeredBy"`
}

type SyncRunResponse struct {
	Id            uint          `json:"id"`
	Status        string        `json:"status"`
	TriggeredBy   string        `json:"triggeredBy"`
	RecordsSynced int           `json:"recordsSynced"`
	ErrorCount    int           `json:"errorCount"`
	Stats         *SyncRunStats `json:"stats,omitempty"`
	ParentRunId   *uint         `json:"parentRunId,omitempty"`
	StartedAt     *string       `json:"startedAt,omitempty"`
	FinishedAt    *string       `json:"finishedAt,omitempty"`
	DurationMs    int64         `json:"durationMs"`
	CreatedAt     string        `json:"createdAt"`
}

type SyncLogResponse struct {
	Id         uint   `json:"id"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	EntityType string `json:"entityType,omitempty"`
	EntityId   string `json:"entityId,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run *models.QboSyncRun) SyncRunResponse {
	resp := SyncRunResponse{
		Id:            run.ID,
		Status:        run.Status,
		TriggeredBy:   run.TriggeredBy,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
		ParentRunId:   run.ParentRunId,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		CreatedAt:     run.CreatedAt.UTC().Format(time.RFC3339),
	}
	if len(run.StatsJSON) > 0 {
		resp.Stats = decodeStats(run.StatsJSON)
	}
	return resp
}

func decodeStats(raw []byte) *SyncRunStats {
	var stats SyncRunStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil
	}
	return &stats
}

func mapLogToResponse(row *models.QboSyncLog) SyncLogResponse {
	return SyncLogResponse{
		Id:         row.ID,
		Action:     row.Action,
		Status:     row.Status,
		EntityType: row.EntityType,
		EntityId:   row.EntityId,
		Detail:     row.Detail,
		CreatedAt:  row.CreatedAt.UTC().Format(time.RFC3339),
	}
}
