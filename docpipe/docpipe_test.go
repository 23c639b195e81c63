package docpipe

import (
	"context"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	// WHAT: Extension and MIME routing covers the supported formats.
	// WHY: Detection decides which extractor runs; misrouting breaks files.
	tests := []struct {
		name string
		mime string
		kind FileKind
		ok   bool
	}{
		{"orders.xlsx", "", KindSpreadsheet, true},
		{"orders.XLSX", "", KindSpreadsheet, true},
		{"legacy.xls", "", KindSpreadsheet, true},
		{"data.csv", "", KindSpreadsheet, true},
		{"report.pdf", "", KindPDF, true},
		{"letter.docx", "", KindDoc, true},
		{"notes.txt", "", KindText, true},
		{"blob", "text/csv", KindSpreadsheet, true},
		{"blob", "application/vnd.ms-excel", KindSpreadsheet, true},
		{"image.png", "image/png", 0, false},
		{"archive.zip", "", 0, false},
	}
	for _, tt := range tests {
		kind, ok := Detect(tt.name, tt.mime)
		if ok != tt.ok || kind != tt.kind {
			t.Errorf("Detect(%q, %q) = (%v, %v), want (%v, %v)",
				tt.name, tt.mime, kind, ok, tt.kind, tt.ok)
		}
	}
}

func TestProcessFiles_SkipsUnrecognized(t *testing.T) {
	// WHAT: Unrecognized types are skipped, not failed.
	// WHY: A stray image in a batch should not block the documents.
	p := New(Config{})
	files := []UploadedFile{
		{Name: "photo.png", MIME: "image/png", Size: 4, Data: []byte("fake")},
		{Name: "notes.txt", MIME: "text/plain", Size: 11, Data: []byte("hello world")},
	}
	out, err := p.ProcessFiles(context.Background(), files)
	if err != nil {
		t.Fatalf("ProcessFiles: %v", err)
	}
	if len(out) != 1 || out[0].Name != "notes.txt" {
		t.Fatalf("out = %+v, want only notes.txt", out)
	}
	if out[0].Triage.Route != RouteTextPlain {
		t.Errorf("route = %q, want %q", out[0].Triage.Route, RouteTextPlain)
	}
}

func TestProcessFiles_ExtractorErrorAbortsBatch(t *testing.T) {
	// WHAT: A failing extractor aborts the whole batch with no partials.
	// WHY: Partial ingestion would leave the manifest inconsistent.
	p := New(Config{})
	files := []UploadedFile{
		{Name: "good.txt", MIME: "text/plain", Size: 11, Data: []byte("hello world")},
		{Name: "bad.csv", MIME: "text/csv", Size: 6, Data: []byte("A,B,C\n")},
	}
	out, err := p.ProcessFiles(context.Background(), files)
	if err == nil {
		t.Fatal("expected batch error")
	}
	if out != nil {
		t.Errorf("out = %+v, want nil on batch error", out)
	}
	if !strings.Contains(err.Error(), "bad.csv") {
		t.Errorf("error = %v, want failing file named", err)
	}
}

func TestProcessFiles_FileTooLarge(t *testing.T) {
	// WHAT: Oversized files abort the batch.
	// WHY: The size cap protects memory; it is checked before extraction.
	p := New(Config{MaxFileSize: 10})
	files := []UploadedFile{
		{Name: "big.txt", MIME: "text/plain", Size: 100, Data: make([]byte, 100)},
	}
	if _, err := p.ProcessFiles(context.Background(), files); err == nil {
		t.Fatal("expected error for oversized file")
	}
}

func TestProcessFiles_CancelledContext(t *testing.T) {
	// WHAT: A cancelled context stops the batch.
	// WHY: Callers must be able to abandon long batches.
	p := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ProcessFiles(ctx, []UploadedFile{{Name: "a.txt", Data: []byte("x")}}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestProcessFiles_EmptyTextFile(t *testing.T) {
	// WHAT: A whitespace-only text file is a hard error.
	// WHY: Empty documents signal a broken upload, not an empty result.
	p := New(Config{})
	files := []UploadedFile{{Name: "empty.txt", MIME: "text/plain", Size: 3, Data: []byte("  \n")}}
	if _, err := p.ProcessFiles(context.Background(), files); err == nil {
		t.Fatal("expected error for empty text file")
	}
}

func TestProcessFiles_SpreadsheetRoute(t *testing.T) {
	// WHAT: A CSV batch yields the structured spreadsheet route with rows.
	// WHY: Path A output feeds row-quality analysis downstream.
	p := New(Config{})
	csvData := "PO_Number,Status\nPO-1,Shipped\nPO-2,Pending\n"
	files := []UploadedFile{{Name: "track.csv", MIME: "text/csv", Size: int64(len(csvData)), Data: []byte(csvData)}}
	out, err := p.ProcessFiles(context.Background(), files)
	if err != nil {
		t.Fatalf("ProcessFiles: %v", err)
	}
	pf := out[0]
	if pf.Triage.Route != RouteSpreadsheet {
		t.Errorf("route = %q, want %q", pf.Triage.Route, RouteSpreadsheet)
	}
	if !pf.Tabular() {
		t.Error("Tabular() = false, want true")
	}
	if len(pf.Rows) != 2 || pf.Rows[1]["Status"] != "Pending" {
		t.Errorf("rows = %+v", pf.Rows)
	}
}
