package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sdgateway/logging"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := MigrationVersion(db.Path())
	if err != nil {
		t.Fatalf("MigrationVersion() error: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", version, dirty)
	}
	if err := db.Ping(); err != nil {
		t.Errorf("Ping() error: %v", err)
	}

	// Reopening an up-to-date database is fine.
	again, err := Open(db.Path())
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	again.Close()
}

func TestMigrateDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := MigrateUp(path); err != nil {
		t.Fatalf("MigrateUp() error: %v", err)
	}
	if err := MigrateDown(path, -1); err != nil {
		t.Fatalf("MigrateDown() error: %v", err)
	}
	version, _, err := MigrationVersion(path)
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("version after down = %d, want 0", version)
	}
}

func TestRepository_InsertAndRecent(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	first := Record{
		RequestID:  "req-1",
		Endpoint:   "txt2img",
		Prompt:     "a lighthouse",
		Seed:       42,
		Width:      768,
		Height:     384,
		Mode:       -1,
		Model:      "Euler a",
		Outputs:    []string{"/out/1_0.png", "/out/1_1.png"},
		Info:       `{"seed": 42}`,
		Status:     StatusSuccess,
		DurationMS: 1500,
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if _, err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if _, err := repo.Insert(ctx, Record{RequestID: "req-2", Endpoint: "upscale", Status: StatusError, ErrorMessage: "engine down"}); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	records, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent() returned %d records, want 2", len(records))
	}

	if records[0].RequestID != "req-2" || records[0].ErrorMessage != "engine down" {
		t.Errorf("newest record = %+v", records[0])
	}
	if len(records[0].Outputs) != 0 {
		t.Errorf("failed record outputs = %v, want empty", records[0].Outputs)
	}

	got := records[1]
	if got.Prompt != first.Prompt || got.Seed != 42 || got.Width != 768 || got.Model != "Euler a" {
		t.Errorf("stored record = %+v", got)
	}
	if len(got.Outputs) != 2 || got.Outputs[1] != "/out/1_1.png" {
		t.Errorf("Outputs = %v", got.Outputs)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, first.CreatedAt)
	}

	limited, err := repo.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("Recent(1) returned %d records", len(limited))
	}
}

func TestRepository_Cleanup(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	old := Record{RequestID: "old", Endpoint: "txt2img", Status: StatusSuccess, CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := Record{RequestID: "fresh", Endpoint: "txt2img", Status: StatusSuccess}
	for _, rec := range []Record{old, fresh} {
		if _, err := repo.Insert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	if n, err := repo.Cleanup(ctx, 0); err != nil || n != 0 {
		t.Errorf("Cleanup(0) = %d, %v; want 0, nil", n, err)
	}

	deleted, err := repo.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestRepository_AsyncRecord(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	writer := NewAsyncWriter(repo.WriteHandler(), 10, logging.NewNop())
	repo.AttachWriter(writer)
	writer.Start()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Record(ctx, Record{RequestID: id, Endpoint: "img2img", Status: StatusSuccess}); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	if !writer.StopWithTimeout(5 * time.Second) {
		t.Fatal("writer did not drain in time")
	}
	if n, _ := repo.Count(ctx); n != 3 {
		t.Errorf("Count() after drain = %d, want 3", n)
	}
}

func TestRepository_RecordWithoutWriter(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()

	if err := repo.Record(ctx, Record{RequestID: "sync", Endpoint: "upscale", Status: StatusSuccess}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestDatabase_Closed(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if _, err := NewRepository(db).Recent(context.Background(), 5); err == nil {
		t.Error("Recent() on closed database should fail")
	}
}
