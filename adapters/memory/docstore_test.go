package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/linkside/gateway/adapters/memory"
	"github.com/linkside/gateway/ports"
)

func TestDocStore_CreateAssignsID(t *testing.T) {
	store := memory.NewDocStore()

	doc, err := store.Create(context.Background(), "things", ports.Document{"name": "a"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if doc["id"] == "" || doc["id"] == nil {
		t.Error("expected assigned id")
	}

	// Caller-provided ids are kept.
	doc2, _ := store.Create(context.Background(), "things", ports.Document{"id": "custom", "name": "b"})
	if doc2["id"] != "custom" {
		t.Errorf("id = %v, want custom", doc2["id"])
	}
}

func TestDocStore_FindByFilter(t *testing.T) {
	store := memory.NewDocStore()
	store.Create(context.Background(), "things", ports.Document{"kind": "x", "n": 1})
	store.Create(context.Background(), "things", ports.Document{"kind": "y", "n": 2})
	store.Create(context.Background(), "things", ports.Document{"kind": "x", "n": 3})

	docs, err := store.Find(context.Background(), "things", ports.Filter{"kind": "x"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("found %d docs, want 2", len(docs))
	}

	// Empty filter matches everything.
	all, _ := store.Find(context.Background(), "things", ports.Filter{})
	if len(all) != 3 {
		t.Errorf("found %d docs, want 3", len(all))
	}

	// Unknown collection is empty, not an error.
	none, err := store.Find(context.Background(), "missing", ports.Filter{})
	if err != nil || len(none) != 0 {
		t.Errorf("Find(missing) = %v, %v", none, err)
	}
}

func TestDocStore_FindReturnsCopies(t *testing.T) {
	store := memory.NewDocStore()
	store.Create(context.Background(), "things", ports.Document{"id": "1", "name": "a"})

	docs, _ := store.Find(context.Background(), "things", ports.Filter{"id": "1"})
	docs[0]["name"] = "mutated"

	again, _ := store.Find(context.Background(), "things", ports.Filter{"id": "1"})
	if again[0]["name"] != "a" {
		t.Error("stored document was mutated through a Find result")
	}
}

func TestDocStore_Update(t *testing.T) {
	store := memory.NewDocStore()
	doc, _ := store.Create(context.Background(), "things", ports.Document{"name": "a", "active": true})
	id := doc["id"].(string)

	if err := store.Update(context.Background(), "things", id, ports.Document{"active": false}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	docs, _ := store.Find(context.Background(), "things", ports.Filter{"id": id})
	if docs[0]["active"] != false {
		t.Error("patch not applied")
	}
	if docs[0]["name"] != "a" {
		t.Error("unpatched field lost")
	}
}

func TestDocStore_ErrorInjection(t *testing.T) {
	store := memory.NewDocStore()
	wantErr := errors.New("store down")
	store.SetError(wantErr)

	if _, err := store.Find(context.Background(), "things", nil); !errors.Is(err, wantErr) {
		t.Errorf("Find error = %v", err)
	}
	if _, err := store.Create(context.Background(), "things", ports.Document{}); !errors.Is(err, wantErr) {
		t.Errorf("Create error = %v", err)
	}

	store.SetError(nil)
	if _, err := store.Find(context.Background(), "things", nil); err != nil {
		t.Errorf("Find after clearing error = %v", err)
	}
}

func TestDocStore_CountsCalls(t *testing.T) {
	store := memory.NewDocStore()
	store.Find(context.Background(), "things", nil)
	store.Find(context.Background(), "things", nil)
	store.Create(context.Background(), "things", ports.Document{})

	if store.Calls("find") != 2 {
		t.Errorf("find calls = %d, want 2", store.Calls("find"))
	}
	if store.Calls("create") != 1 {
		t.Errorf("create calls = %d, want 1", store.Calls("create"))
	}
}
