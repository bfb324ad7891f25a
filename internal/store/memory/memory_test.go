package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/agenda/internal/store"
)

func TestSubscribe_DeliversInitialSnapshot(t *testing.T) {
	m := New()
	m.Seed("clients", "c1", map[string]any{"name": "Rossi"})

	var got store.Snapshot
	unsub, err := m.Subscribe(context.Background(), "clients", func(s store.Snapshot) {
		got = s
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer unsub()

	if len(got) != 1 {
		t.Fatalf("initial snapshot size = %d, want 1", len(got))
	}
	if got[0].ID != "c1" {
		t.Errorf("snapshot doc ID = %q, want %q", got[0].ID, "c1")
	}
}

func TestSet_NotifiesSubscribersWithFullSnapshot(t *testing.T) {
	m := New()

	var snapshots []store.Snapshot
	unsub, err := m.Subscribe(context.Background(), "tasks", func(s store.Snapshot) {
		snapshots = append(snapshots, s)
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer unsub()

	if err := m.Set(context.Background(), "tasks", "t1", map[string]any{"title": "visita"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := m.Set(context.Background(), "tasks", "t2", map[string]any{"title": "consegna"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	// 初回 + 変更2回 = 3スナップショット
	if len(snapshots) != 3 {
		t.Fatalf("snapshot count = %d, want 3", len(snapshots))
	}
	// 各スナップショットは常にコレクション全体の内容
	if len(snapshots[2]) != 2 {
		t.Errorf("final snapshot size = %d, want 2", len(snapshots[2]))
	}
}

func TestSubscribe_DoesNotNotifyOtherCollections(t *testing.T) {
	m := New()

	count := 0
	unsub, _ := m.Subscribe(context.Background(), "users", func(s store.Snapshot) {
		count++
	}, nil)
	defer unsub()

	m.Set(context.Background(), "tasks", "t1", map[string]any{"title": "visita"})

	if count != 1 {
		t.Errorf("users subscriber received %d snapshots, want 1 (initial only)", count)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	m := New()

	count := 0
	unsub, _ := m.Subscribe(context.Background(), "tasks", func(s store.Snapshot) {
		count++
	}, nil)

	unsub()
	m.Set(context.Background(), "tasks", "t1", map[string]any{"title": "visita"})

	if count != 1 {
		t.Errorf("received %d snapshots after unsubscribe, want 1 (initial only)", count)
	}

	// 多重解除しても安全
	unsub()
}

// TestUnsubscribe_FromInsideCallback はコールバック内から自分自身を解除しても
// デッドロックしないことを検証する。強制サインアウト時に起こるパターン。
func TestUnsubscribe_FromInsideCallback(t *testing.T) {
	m := New()

	var unsub store.Unsubscribe
	count := 0
	unsub, _ = m.Subscribe(context.Background(), "tasks", func(s store.Snapshot) {
		count++
		if count == 2 {
			unsub()
		}
	}, nil)

	m.Set(context.Background(), "tasks", "t1", map[string]any{"title": "visita"})
	m.Set(context.Background(), "tasks", "t2", map[string]any{"title": "consegna"})

	if count != 2 {
		t.Errorf("received %d snapshots, want 2 (unsubscribed from inside second delivery)", count)
	}
}

func TestAdd_GeneratesUniqueIDs(t *testing.T) {
	m := New()

	id1, err := m.Add(context.Background(), "clients", map[string]any{"name": "Rossi"})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	id2, err := m.Add(context.Background(), "clients", map[string]any{"name": "Bianchi"})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if id1 == "" || id2 == "" {
		t.Fatal("Add should return non-empty IDs")
	}
	if id1 == id2 {
		t.Error("Add should generate unique IDs")
	}
}

func TestUpdate_MergesFields(t *testing.T) {
	m := New()
	m.Seed("clients", "c1", map[string]any{"name": "Rossi", "color": "teal"})

	err := m.Update(context.Background(), "clients", "c1", map[string]any{"color": "#ff0000"})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	docs, _ := m.GetByField(context.Background(), "clients", "name", "Rossi")
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Fields["color"] != "#ff0000" {
		t.Errorf("color = %v, want #ff0000", docs[0].Fields["color"])
	}
	if docs[0].Fields["name"] != "Rossi" {
		t.Errorf("name = %v, want Rossi (untouched fields must survive)", docs[0].Fields["name"])
	}
}

func TestUpdate_MissingDocument_ReturnsNotFound(t *testing.T) {
	m := New()

	err := m.Update(context.Background(), "clients", "nope", map[string]any{"name": "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update error = %v, want store.ErrNotFound", err)
	}
}

func TestDelete_MissingDocument_Succeeds(t *testing.T) {
	m := New()

	if err := m.Delete(context.Background(), "clients", "nope"); err != nil {
		t.Errorf("Delete of missing document should succeed, got %v", err)
	}
}

func TestGetByField_FiltersOnEquality(t *testing.T) {
	m := New()
	m.Seed("tasks", "t1", map[string]any{"clientId": "c1"})
	m.Seed("tasks", "t2", map[string]any{"clientId": "c1"})
	m.Seed("tasks", "t3", map[string]any{"clientId": "c2"})

	docs, err := m.GetByField(context.Background(), "tasks", "clientId", "c1")
	if err != nil {
		t.Fatalf("GetByField returned error: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("matched %d documents, want 2", len(docs))
	}
}

func TestBatchCommit_AppliesAtomicallyAndNotifiesOnce(t *testing.T) {
	m := New()
	m.Seed("tasks", "t1", map[string]any{"clientId": "c1"})
	m.Seed("tasks", "t2", map[string]any{"clientId": "c1"})
	m.Seed("clients", "c1", map[string]any{"name": "Rossi"})

	var taskSnapshots, clientSnapshots []store.Snapshot
	unsubT, _ := m.Subscribe(context.Background(), "tasks", func(s store.Snapshot) {
		taskSnapshots = append(taskSnapshots, s)
	}, nil)
	defer unsubT()
	unsubC, _ := m.Subscribe(context.Background(), "clients", func(s store.Snapshot) {
		clientSnapshots = append(clientSnapshots, s)
	}, nil)
	defer unsubC()

	b := m.NewBatch()
	b.Delete("tasks", "t1")
	b.Delete("tasks", "t2")
	b.Delete("clients", "c1")
	if err := b.Commit(context.Background()); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}

	// 初回 + コミット後の1回 = 各コレクション2スナップショット
	if len(taskSnapshots) != 2 {
		t.Errorf("task snapshot count = %d, want 2 (one notification per collection)", len(taskSnapshots))
	}
	if len(clientSnapshots) != 2 {
		t.Errorf("client snapshot count = %d, want 2", len(clientSnapshots))
	}

	// 部分削除状態が観測されないこと: コミット後のタスクは空
	final := taskSnapshots[len(taskSnapshots)-1]
	if len(final) != 0 {
		t.Errorf("final task snapshot size = %d, want 0", len(final))
	}
}

func TestSetAuthorized_False_RejectsOperationsAndNotifiesSubscribers(t *testing.T) {
	m := New()

	var subErr error
	unsub, _ := m.Subscribe(context.Background(), "tasks", func(s store.Snapshot) {}, func(err error) {
		subErr = err
	})
	defer unsub()

	m.SetAuthorized(false)

	if !errors.Is(subErr, store.ErrPermissionDenied) {
		t.Errorf("subscriber error = %v, want ErrPermissionDenied", subErr)
	}

	if err := m.Set(context.Background(), "tasks", "t1", map[string]any{}); !errors.Is(err, store.ErrPermissionDenied) {
		t.Errorf("Set error = %v, want ErrPermissionDenied", err)
	}
	if _, err := m.GetByField(context.Background(), "tasks", "a", "b"); !errors.Is(err, store.ErrPermissionDenied) {
		t.Errorf("GetByField error = %v, want ErrPermissionDenied", err)
	}
	if _, err := m.Subscribe(context.Background(), "tasks", func(store.Snapshot) {}, nil); !errors.Is(err, store.ErrPermissionDenied) {
		t.Errorf("Subscribe error = %v, want ErrPermissionDenied", err)
	}
	if err := m.NewBatch().Commit(context.Background()); !errors.Is(err, store.ErrPermissionDenied) {
		t.Errorf("batch Commit error = %v, want ErrPermissionDenied", err)
	}
}

// TestSnapshot_IsDefensiveCopy は配送されたスナップショットを書き換えても
// ストア内部の状態に影響しないことを検証する。
func TestSnapshot_IsDefensiveCopy(t *testing.T) {
	m := New()
	m.Seed("clients", "c1", map[string]any{"name": "Rossi"})

	var got store.Snapshot
	unsub, _ := m.Subscribe(context.Background(), "clients", func(s store.Snapshot) {
		got = s
	}, nil)
	defer unsub()

	got[0].Fields["name"] = "mutated"

	docs, _ := m.GetByField(context.Background(), "clients", "name", "Rossi")
	if len(docs) != 1 {
		t.Error("store contents should not be affected by snapshot mutation")
	}
}
