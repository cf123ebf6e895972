package storage

import (
	"testing"
	"time"
)

func TestSchedulerRunsGCSweepJob(t *testing.T) {
	mvcc := NewMVCCManager()
	recycler := NewRecycler(mvcc, 16)

	cm := NewCatalogManager()
	sched := NewScheduler(cm, GCSweepExecutor(recycler))

	job := NewGCSweepJob("gc-sweep", 10)
	if err := sched.AddJob(job); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sched.Stop()

	time.Sleep(50 * time.Millisecond)

	got, err := cm.GetJob("gc-sweep")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.LastRunAt == nil {
		t.Error("expected the GC sweep job to have run at least once")
	}
}
