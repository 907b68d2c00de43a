package memory

import (
	"path/filepath"
	"testing"
)

func TestReadLongTermEmptyWhenNoFile(t *testing.T) {
	s := NewStore(t.TempDir(), "")
	if got := s.ReadLongTerm(); got != "" {
		t.Fatalf("expected empty long-term memory, got %q", got)
	}
}

func TestWriteThenReadLongTermRoundTrips(t *testing.T) {
	s := NewStore(t.TempDir(), "")
	if err := s.WriteLongTerm("user prefers terse replies"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}
	if got := s.ReadLongTerm(); got != "user prefers terse replies" {
		t.Fatalf("got %q", got)
	}
}

func TestAppendHistoryAddsBlankLineSeparator(t *testing.T) {
	s := NewStore(t.TempDir(), "")
	if err := s.AppendHistory("first entry\n"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if err := s.AppendHistory("second entry"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	got := readFileOrEmpty(s.historyFile())
	want := "first entry\n\nsecond entry\n\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAppendTodayCreatesDateHeaderOnFirstWrite(t *testing.T) {
	s := NewStore(t.TempDir(), "")
	if err := s.AppendToday("did the thing"); err != nil {
		t.Fatalf("AppendToday: %v", err)
	}
	got := s.ReadToday()
	want := "# " + todayDate() + "\n\ndid the thing"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	if err := s.AppendToday("did another thing"); err != nil {
		t.Fatalf("AppendToday: %v", err)
	}
	got = s.ReadToday()
	want = want + "\ndid another thing"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAppendTodayNestsUnderDailySubdir(t *testing.T) {
	workspace := t.TempDir()
	s := NewStore(workspace, "agent-a")
	if err := s.AppendToday("note"); err != nil {
		t.Fatalf("AppendToday: %v", err)
	}
	want := filepath.Join(workspace, "memory", "agent-a", todayDate()+".md")
	if got := s.todayFile(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestContextEmptyWhenNothingWritten(t *testing.T) {
	s := NewStore(t.TempDir(), "")
	if got := s.Context(); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func TestContextJoinsLongTermAndTodaySections(t *testing.T) {
	s := NewStore(t.TempDir(), "")
	if err := s.WriteLongTerm("facts"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}
	if err := s.AppendToday("today's note"); err != nil {
		t.Fatalf("AppendToday: %v", err)
	}

	got := s.Context()
	want := "## Long-term Memory\nfacts\n\n## Today's Notes\n# " + todayDate() + "\n\ntoday's note"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestContextLongTermOnlyWhenNoTodayNotes(t *testing.T) {
	s := NewStore(t.TempDir(), "")
	if err := s.WriteLongTerm("facts"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}
	got := s.Context()
	want := "## Long-term Memory\nfacts"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
