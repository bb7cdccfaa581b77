package queue

import (
	"sync"
	"testing"
)

func TestNextFIFOAndExhausts(t *testing.T) {
	q := New([]Task{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}})

	first, ok := q.Next("w1")
	if !ok || first.ID != "t1" {
		t.Fatalf("got %+v, %v, want t1, true", first, ok)
	}
	second, ok := q.Next("w1")
	if !ok || second.ID != "t2" {
		t.Fatalf("got %+v, %v, want t2, true", second, ok)
	}
}

func TestRequeueGoesToTail(t *testing.T) {
	q := New([]Task{{ID: "t1"}, {ID: "t2"}})

	first, _ := q.Next("w1")
	q.Requeue(first.ID)

	next, ok := q.Next("w2")
	if !ok || next.ID != "t2" {
		t.Fatalf("expected t2 next after requeueing t1 to tail, got %+v", next)
	}
	after, ok := q.Next("w2")
	if !ok || after.ID != "t1" {
		t.Fatalf("expected t1 at tail, got %+v", after)
	}
}

func TestCompleteMarksDone(t *testing.T) {
	q := New([]Task{{ID: "t1"}})
	task, _ := q.Next("w1")
	q.Complete("w1", task.ID, true)
	if q.DoneCount() != 1 {
		t.Errorf("DoneCount = %d, want 1", q.DoneCount())
	}
	if q.InProgressCount() != 0 {
		t.Errorf("InProgressCount = %d, want 0", q.InProgressCount())
	}
}

func TestConcurrentNextNeverDoubleAssigns(t *testing.T) {
	tasks := make([]Task, 50)
	for i := range tasks {
		tasks[i] = Task{ID: string(rune('a' + i))}
	}
	q := New(tasks)

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				task, ok := q.Next(string(rune('A' + id)))
				if !ok {
					return
				}
				mu.Lock()
				if seen[task.ID] {
					t.Errorf("task %s assigned twice", task.ID)
				}
				seen[task.ID] = true
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	if len(seen) != len(tasks) {
		t.Errorf("saw %d distinct tasks, want %d", len(seen), len(tasks))
	}
}

func TestDisjointFilesDetectsCollision(t *testing.T) {
	tasks := []Task{
		{ID: "t1", Files: []string{"a.go", "b.go"}},
		{ID: "t2", Files: []string{"b.go", "c.go"}},
	}
	ok, path, a, b := DisjointFiles(tasks)
	if ok {
		t.Fatalf("expected collision on b.go")
	}
	if path != "b.go" || a != "t1" || b != "t2" {
		t.Errorf("got path=%s a=%s b=%s", path, a, b)
	}
}

func TestParallelizableBatchSplitsOnConflict(t *testing.T) {
	tasks := []Task{
		{ID: "t1", Files: []string{"a.go"}},
		{ID: "t2", Files: []string{"b.go"}},
		{ID: "t3", Files: []string{"a.go"}},
	}
	parallel, sequential := ParallelizableBatch(tasks)
	if len(parallel) != 2 || len(sequential) != 1 {
		t.Fatalf("parallel=%+v sequential=%+v", parallel, sequential)
	}
	if sequential[0].ID != "t3" {
		t.Errorf("expected t3 deferred, got %s", sequential[0].ID)
	}
}
