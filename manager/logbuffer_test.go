package manager

import (
	"fmt"
	"testing"

	"QQFarmBot/models"
)

func TestLogBufferEvictsOldest(t *testing.T) {
	b := NewLogBuffer(3)
	for i := 1; i <= 4; i++ {
		b.Append(models.LogInfo, fmt.Sprintf("entry %d", i))
	}

	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	got := b.Tail(10)
	if len(got) != 3 {
		t.Fatalf("Tail returned %d entries, want 3", len(got))
	}
	want := []string{"entry 2", "entry 3", "entry 4"}
	for i, w := range want {
		if got[i].Message != w {
			t.Errorf("entry[%d] = %q, want %q", i, got[i].Message, w)
		}
	}
}

func TestLogBufferTailUnderfilled(t *testing.T) {
	b := NewLogBuffer(10)
	b.Append(models.LogInfo, "a")
	b.Append(models.LogWarn, "b")
	b.Append(models.LogError, "c")

	got := b.Tail(5)
	if len(got) != 3 {
		t.Fatalf("Tail(5) returned %d entries, want all 3", len(got))
	}
	if got[0].Message != "a" || got[2].Message != "c" {
		t.Fatalf("entries out of append order: %q .. %q", got[0].Message, got[2].Message)
	}
	if got[1].Level != models.LogWarn {
		t.Fatalf("level = %s, want warn", got[1].Level)
	}
}

func TestLogBufferTailLimit(t *testing.T) {
	b := NewLogBuffer(5)
	for i := 1; i <= 5; i++ {
		b.Append(models.LogInfo, fmt.Sprintf("entry %d", i))
	}

	got := b.Tail(2)
	if len(got) != 2 {
		t.Fatalf("Tail(2) returned %d entries, want 2", len(got))
	}
	if got[0].Message != "entry 4" || got[1].Message != "entry 5" {
		t.Fatalf("want the two newest entries, got %q, %q", got[0].Message, got[1].Message)
	}

	if got := b.Tail(0); len(got) != 5 {
		t.Fatalf("Tail(0) returned %d entries, want the whole buffer", len(got))
	}
}

func TestLogBufferWrapsAround(t *testing.T) {
	b := NewLogBuffer(4)
	for i := 1; i <= 10; i++ {
		b.Append(models.LogInfo, fmt.Sprintf("entry %d", i))
	}
	got := b.Tail(4)
	want := []string{"entry 7", "entry 8", "entry 9", "entry 10"}
	for i, w := range want {
		if got[i].Message != w {
			t.Errorf("entry[%d] = %q, want %q", i, got[i].Message, w)
		}
	}
}
