package persist

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TUNNELS")
	log := testLogger()

	want := []Entry{
		{URL: "quic://a.example:4443", Age: 16},
		{URL: "ws://b.example/tunnel", Age: 3},
	}
	Write(log, path, want)

	got := Read(log, path)
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWriteSkipsZeroAgeEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TUNNELS")
	log := testLogger()

	Write(log, path, []Entry{
		{URL: "quic://dead.example", Age: 0},
		{URL: "quic://alive.example", Age: 5},
	})

	got := Read(log, path)
	if len(got) != 1 || got[0].URL != "quic://alive.example" {
		t.Fatalf("got %+v, want only the alive entry", got)
	}
}

func TestWriteRotatesPreviousLiveToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TUNNELS")
	log := testLogger()

	Write(log, path, []Entry{{URL: "quic://first.example", Age: 16}})
	Write(log, path, []Entry{{URL: "quic://second.example", Age: 16}})

	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("expected backup file to exist: %v", err)
	}

	bak := Read(log, path+".bak")
	if len(bak) != 1 || bak[0].URL != "quic://first.example" {
		t.Fatalf("backup contents = %+v, want the first write", bak)
	}
}

func TestReadFallsBackToBackupWhenLiveMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TUNNELS")
	log := testLogger()

	if err := os.WriteFile(path+".bak", []byte("quic://fallback.example 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := Read(log, path)
	if len(got) != 1 || got[0] != (Entry{URL: "quic://fallback.example", Age: 9}) {
		t.Fatalf("got %+v, want fallback entry", got)
	}
}

func TestReadReturnsNilWhenNeitherFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TUNNELS")
	if got := Read(testLogger(), path); got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}

func TestReadStopsAtFirstMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TUNNELS")
	content := "quic://good.example 4\nnot-a-valid-line\nquic://after.example 2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got := Read(testLogger(), path)
	if len(got) != 1 || got[0].URL != "quic://good.example" {
		t.Fatalf("got %+v, want parsing to stop after the first good line", got)
	}
}

func TestWriteProducesReadablePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TUNNELS")
	Write(testLogger(), path, []Entry{{URL: "quic://a.example", Age: 1}})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o400 == 0 {
		t.Fatalf("file mode %v is not owner-readable", info.Mode())
	}
}
