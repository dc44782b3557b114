package services

import (
	"context"
	"testing"
	"time"

	"github.com/maxinvesting/CardzCheck-sub003/internal/models"
)

func TestCmvWorkerEnqueueDedupes(t *testing.T) {
	w := NewCmvWorker(NewCmvService(newTestDB(t), &stubEstimator{}), 1)

	if !w.Enqueue(1) {
		t.Fatal("first enqueue rejected")
	}
	if w.Enqueue(1) {
		t.Error("duplicate enqueue accepted")
	}
	if !w.Enqueue(2) {
		t.Error("second item rejected")
	}
	if got := w.QueueSize(); got != 2 {
		t.Errorf("QueueSize = %d, want 2", got)
	}
}

func TestCmvWorkerProcessesQueue(t *testing.T) {
	db := newTestDB(t)
	est := &stubEstimator{est: CmvEstimate{Value: fp(75), Confidence: "low", CompsCount: 2}}
	w := NewCmvWorker(NewCmvService(db, est), 2)

	var ids []uint
	for i := 0; i < 5; i++ {
		ids = append(ids, createItem(t, db, models.CollectionItem{CmvStatus: models.CmvStatusPending}).ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()
	for _, id := range ids {
		w.Enqueue(id)
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.QueueSize() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-stopped

	for _, id := range ids {
		got := reload(t, db, id)
		if got.CmvStatus != models.CmvStatusReady || got.EstimatedCmv == nil || *got.EstimatedCmv != 75 {
			t.Errorf("item %d = %s / %v", id, got.CmvStatus, got.EstimatedCmv)
		}
	}
	if s := w.Status(); s.ProcessedToday != len(ids) || s.FailedToday != 0 {
		t.Errorf("status = %+v", s)
	}
}
