package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, KeyAccessToken); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, KeyAccessToken, "a1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, KeyUser, `{"username":"dana"}`); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, KeyAccessToken, "a2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, KeyAccessToken)
	if err != nil || !ok || v != "a2" {
		t.Fatalf("get access: %q %v %v", v, ok, err)
	}
	if err := s.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyUser); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{KeyAccessToken, KeyUser} {
		if _, ok, err := s.Get(ctx, k); err != nil || ok {
			t.Fatalf("%s still present: ok=%v err=%v", k, ok, err)
		}
	}
	if err := s.Delete(ctx, KeyUser); err != nil {
		t.Fatalf("deleting absent key: %v", err)
	}
}

func TestMemory(t *testing.T) {
	t.Parallel()
	exerciseStorage(t, NewMemory())
}

func TestFile(t *testing.T) {
	t.Parallel()
	exerciseStorage(t, NewFile(filepath.Join(t.TempDir(), "nested", "session.json")))
}

func TestFilePermissionsAndPersistence(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	if err := NewFile(path).Set(ctx, KeyRefreshToken, "r1"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("mode = %v, want 0600", perm)
	}
	v, ok, err := NewFile(path).Get(ctx, KeyRefreshToken)
	if err != nil || !ok || v != "r1" {
		t.Fatalf("reopened store: %q %v %v", v, ok, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileCorruptDocument(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	f := NewFile(path)
	if _, _, err := f.Get(context.Background(), KeyUser); err == nil {
		t.Fatal("expected decode error")
	}
	if err := f.Delete(context.Background(), KeyUser); err != nil {
		t.Fatalf("delete should clear a corrupt file: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt file not removed: %v", err)
	}
}

func TestRedis(t *testing.T) {
	url := os.Getenv("BMS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BMS_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := OpenRedis(ctx, url, "test-"+time.Now().Format("150405.000000"), WithTTL(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	exerciseStorage(t, r)
}

func TestRedisKeyPrefix(t *testing.T) {
	r := NewRedis(nil, " ")
	if got := r.key(KeyUser); got != "bms:default:user" {
		t.Fatalf("key = %q", got)
	}
	r = NewRedis(nil, "kiosk-3")
	if got := r.key(KeyAccessToken); got != "bms:kiosk-3:access_token" {
		t.Fatalf("key = %q", got)
	}
}
