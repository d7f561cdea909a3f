package services

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func TestExtractText_UnsupportedType(t *testing.T) {
	svc := NewExtractService()
	if _, err := svc.ExtractText("notes.png", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestExtractText_TXT(t *testing.T) {
	svc := NewExtractService()

	text, err := svc.ExtractText("notes.txt", strings.NewReader("  line one  \r\n\r\n\r\nline two\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "line one\n\nline two" {
		t.Errorf("unexpected normalized text %q", text)
	}
}

func TestExtractText_EmptyTXT(t *testing.T) {
	svc := NewExtractService()
	if _, err := svc.ExtractText("empty.txt", strings.NewReader("   \n \n")); err == nil {
		t.Fatal("expected error for empty text file")
	}
}

func TestExtractText_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(`<w:document><w:p><w:r><w:t>First paragraph &amp; more</w:t></w:r></w:p><w:p><w:r><w:t>Second</w:t></w:r></w:p></w:document>`))
	zw.Close()

	svc := NewExtractService()
	text, err := svc.ExtractText("notes.docx", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "First paragraph & more") || !strings.Contains(text, "Second") {
		t.Errorf("unexpected docx text %q", text)
	}
}

func TestNormalizeExtractedText_CollapsesBlankRuns(t *testing.T) {
	got := normalizeExtractedText("a\n\n\n\nb")
	if got != "a\n\nb" {
		t.Errorf("expected single blank line kept, got %q", got)
	}
}
