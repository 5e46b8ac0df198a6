package storage

import (
	"context"
	"errors"
	"testing"
)

func TestLocalSaveAndLoad(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	ctx := context.Background()

	want := []byte("cover data")
	if err := local.Save(ctx, "cover_1", want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := local.Load(ctx, "cover_1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("unexpected data: %q", got)
	}
}

func TestLocalLoadMissing(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}

	_, err = local.Load(context.Background(), "cover_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalDelete(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	ctx := context.Background()

	if err := local.Save(ctx, "cover_2", []byte("x")); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := local.Delete(ctx, "cover_2"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := local.Load(ctx, "cover_2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// 存在しないファイルの削除はエラーにならない
	if err := local.Delete(ctx, "cover_2"); err != nil {
		t.Fatalf("Delete returned error for missing file: %v", err)
	}
}

func TestLocalIgnoresPathElements(t *testing.T) {
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	ctx := context.Background()

	if err := local.Save(ctx, "../escape", []byte("x")); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	// パス要素を落とした同じ名前で読める
	if _, err := local.Load(ctx, "escape"); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
}

func TestNewLocalRequiresDir(t *testing.T) {
	if _, err := NewLocal(""); err == nil {
		t.Fatal("expected error for empty baseDir")
	}
}
