package timeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenCSVWritesHeaderForNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.csv")

	sink, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := NewLogger(sink).Record("hi", 0, 1, 0.5, SpeakerUser); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// rows must already be on disk before Close
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read timeline: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}

	expected := "char,start_time,end_time,notes,speaker\n" +
		"h,0.000,0.500,confidence: 0.50,user\n" +
		"i,0.500,1.000,confidence: 0.50,user\n"
	if string(data) != expected {
		t.Fatalf("expected %q, got %q", expected, string(data))
	}
}

func TestOpenCSVAppendsToExistingFileWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.csv")

	for _, word := range []string{"a", "b"} {
		sink, err := OpenCSV(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := sink.Append(Event{Unit: word, Start: 0, End: 1, Speaker: SpeakerAgent}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		sink.Close()
	}

	data, _ := os.ReadFile(path)
	if got := strings.Count(string(data), "char,start_time"); got != 1 {
		t.Fatalf("expected exactly one header, got %d", got)
	}
	if lines := strings.Count(string(data), "\n"); lines != 3 {
		t.Fatalf("expected header and two rows, got %d lines", lines)
	}
}

func TestOpenCSVWritesHeaderForEmptyExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	sink, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	sink.Close()

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "char,start_time,end_time,notes") {
		t.Fatalf("expected header in previously empty file, got %q", string(data))
	}
}

func TestCSVSinkQuotesSpecialCharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.csv")
	sink, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_ = NewLogger(sink).Record(",", 0, 1, 1, SpeakerAgent)
	sink.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "\",\",0.000,1.000,synthesized,agent") {
		t.Fatalf("expected comma to be quoted, got %q", string(data))
	}
}
