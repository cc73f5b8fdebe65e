package resolve

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestTrackerDeduplicatesByLogin(t *testing.T) {
	tr := NewTracker()
	tr.Record("john.doe", "John Doe")
	tr.Record("john.doe", "John Doe")
	tr.Record("john.doe", "J. Doe")

	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tr.Len())
	}
	got := tr.Entities()
	if got[0].DisplayName != "John Doe" {
		t.Errorf("DisplayName = %q, want the first one seen", got[0].DisplayName)
	}
}

func TestTrackerKeepsFirstSeenOrder(t *testing.T) {
	tr := NewTracker()
	tr.Record("zoe", "Zoe")
	tr.Record("adam", "Adam")
	tr.Record("mia", "Mia")
	tr.Record("adam", "Adam Again")

	got := tr.Entities()
	want := []string{"zoe", "adam", "mia"}
	if len(got) != len(want) {
		t.Fatalf("got %d entities, want %d", len(got), len(want))
	}
	for i, login := range want {
		if got[i].Login != login {
			t.Errorf("entity %d = %q, want %q", i, got[i].Login, login)
		}
	}
}

func TestTrackerIgnoresEmptyLogin(t *testing.T) {
	tr := NewTracker()
	tr.Record("", "Ghost")

	if tr.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tr.Len())
	}
}

func TestTrackerDisplayNameDefaultsToLogin(t *testing.T) {
	tr := NewTracker()
	tr.Record("bob.jones", "")

	got := tr.Entities()
	if got[0].DisplayName != "bob.jones" {
		t.Errorf("DisplayName = %q, want bob.jones", got[0].DisplayName)
	}
}

func TestWriteReport(t *testing.T) {
	tr := NewTracker()
	tr.Record("zoe", "Zoe Park")
	tr.Record("adam", "Adam Reed")

	var buf bytes.Buffer
	if err := tr.WriteReport(&buf); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	want := "Login Name\tFull Name\nzoe\tZoe Park\nadam\tAdam Reed\n"
	if buf.String() != want {
		t.Errorf("report = %q, want %q", buf.String(), want)
	}
}

func TestSaveReportSkipsWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing_users.txt")

	if err := NewTracker().SaveReport(path); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("stat = %v, want the file to not exist", err)
	}
}

func TestSaveReportCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "missing_users.txt")

	tr := NewTracker()
	tr.Record("mia", "Mia Wong")
	if err := tr.SaveReport(path); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	want := "Login Name\tFull Name\nmia\tMia Wong\n"
	if string(b) != want {
		t.Errorf("report = %q, want %q", b, want)
	}
}
