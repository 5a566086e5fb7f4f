package qbosync

import (
	"context"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/sitelinehq/contractor_backend/models"
)

type memRunStore struct {
	mu   sync.Mutex
	runs map[uint]*models.QboSyncRun
	next uint
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: map[uint]*models.QboSyncRun{}}
}

func (s *memRunStore) Create(run *models.QboSyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	run.ID = s.next
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *memRunStore) Get(businessId string, runId uint) (*models.QboSyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runId]
	if !ok || run.BusinessId != businessId {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *memRunStore) List(businessId string, limit int, offset int) ([]*models.QboSyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.QboSyncRun
	for _, run := range s.runs {
		if run.BusinessId == businessId {
			copied := *run
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memRunStore) MarkRunning(runId uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runId]; ok {
		run.Status = models.QboSyncRunStatusRunning
	}
	return nil
}

func (s *memRunStore) Finish(runId uint, status string, stats SyncRunStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runId]; ok {
		run.Status = status
		run.RecordsSynced = stats.synced()
		run.ErrorCount = len(stats.Errors)
	}
	return nil
}

func queuedRun(t *testing.T, runs *memRunStore) *models.QboSyncRun {
	t.Helper()
	run := &models.QboSyncRun{
		BusinessId:   "biz1",
		ConnectionId: 1,
		Status:       models.QboSyncRunStatusQueued,
		TriggeredBy:  models.QboSyncTriggeredManual,
	}
	if err := runs.Create(run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

func TestProcessSyncRun_SyncsBacklogInOrder(t *testing.T) {
	tokens := &fakeTokens{conn: testConnection(), token: "tok"}
	api := &fakeAPI{respond: sequentialIds("qbo-")}
	syncer, _, _ := testSyncer(tokens, api, testSource())
	runs := newMemRunStore()
	run := queuedRun(t, runs)

	worker := &Worker{syncer: syncer, tokens: tokens, source: testSource(), runs: runs}
	err := worker.ProcessSyncRun(context.Background(), SyncPubSubPayload{
		RunId: run.ID, BusinessId: "biz1", ConnectionId: 1,
	})
	if err != nil {
		t.Fatalf("ProcessSyncRun error: %v", err)
	}

	finished, _ := runs.Get("biz1", run.ID)
	if finished.Status != models.QboSyncRunStatusSuccess {
		t.Fatalf("expected success, got %s", finished.Status)
	}
	// 1 client + 1 invoice + 1 invoice payment + 1 expense + 1 expense
	// payment. The derived vendor does not count as a record.
	if finished.RecordsSynced != 5 {
		t.Fatalf("expected 5 records synced, got %d", finished.RecordsSynced)
	}

	resources := api.callResources()
	first := map[string]int{}
	for i, resource := range resources {
		if _, ok := first[resource]; !ok {
			first[resource] = i
		}
	}
	if !(first["customer"] < first["invoice"] && first["invoice"] < first["payment"]) {
		t.Fatalf("client chain out of order: %v", resources)
	}
	if !(first["vendor"] < first["bill"] && first["bill"] < first["billpayment"]) {
		t.Fatalf("expense chain out of order: %v", resources)
	}
}

func TestProcessSyncRun_PartialOnEntityFailure(t *testing.T) {
	tokens := &fakeTokens{conn: testConnection(), token: "tok"}
	api := &fakeAPI{respond: func(call apiCall, n int) (string, error) {
		if call.resource == "bill" {
			return "", &APIError{StatusCode: 400, Message: "bad bill"}
		}
		return "qbo-" + call.resource, nil
	}}
	source := testSource()
	syncer, _, _ := testSyncer(tokens, api, source)
	runs := newMemRunStore()
	run := queuedRun(t, runs)

	worker := &Worker{syncer: syncer, tokens: tokens, source: source, runs: runs}
	if err := worker.ProcessSyncRun(context.Background(), SyncPubSubPayload{
		RunId: run.ID, BusinessId: "biz1", ConnectionId: 1,
	}); err != nil {
		t.Fatalf("ProcessSyncRun error: %v", err)
	}

	finished, _ := runs.Get("biz1", run.ID)
	if finished.Status != models.QboSyncRunStatusPartial {
		t.Fatalf("expected partial, got %s", finished.Status)
	}
	// The expense and its payment both fail (payment's dependency is the
	// bill), but the client chain still syncs.
	if finished.ErrorCount != 2 {
		t.Fatalf("expected 2 errors, got %d", finished.ErrorCount)
	}
	if finished.RecordsSynced != 3 {
		t.Fatalf("expected 3 records synced, got %d", finished.RecordsSynced)
	}
}

func TestProcessSyncRun_FinishedRunAbsorbsRedelivery(t *testing.T) {
	tokens := &fakeTokens{conn: testConnection(), token: "tok"}
	api := &fakeAPI{respond: sequentialIds("qbo-")}
	syncer, _, _ := testSyncer(tokens, api, testSource())
	runs := newMemRunStore()
	run := queuedRun(t, runs)
	_ = runs.Finish(run.ID, models.QboSyncRunStatusSuccess, SyncRunStats{})

	worker := &Worker{syncer: syncer, tokens: tokens, source: testSource(), runs: runs}
	if err := worker.ProcessSyncRun(context.Background(), SyncPubSubPayload{
		RunId: run.ID, BusinessId: "biz1", ConnectionId: 1,
	}); err != nil {
		t.Fatalf("redelivery must be a no-op, got %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("redelivery must not sync anything, got %d calls", len(api.calls))
	}
}

func TestProcessSyncRun_NoConnectionFailsRun(t *testing.T) {
	tokens := &fakeTokens{}
	api := &fakeAPI{respond: sequentialIds("qbo-")}
	syncer, _, _ := testSyncer(tokens, api, testSource())
	runs := newMemRunStore()
	run := queuedRun(t, runs)

	worker := &Worker{syncer: syncer, tokens: tokens, source: testSource(), runs: runs}
	if err := worker.ProcessSyncRun(context.Background(), SyncPubSubPayload{
		RunId: run.ID, BusinessId: "biz1", ConnectionId: 1,
	}); err == nil {
		t.Fatalf("expected error for missing connection")
	}

	finished, _ := runs.Get("biz1", run.ID)
	if finished.Status != models.QboSyncRunStatusFailed {
		t.Fatalf("expected failed, got %s", finished.Status)
	}
}
