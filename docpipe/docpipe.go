// Package docpipe triages and extracts uploaded business documents.
//
// Supported formats:
//   - .xlsx/.csv: workbooks and CSV, converted to header-keyed rows using
//     calculated cell values (spreadsheet error tokens become empty cells)
//   - .docx: Microsoft Word, read as archive/zip + word/document.xml
//   - .pdf: local extraction first; escalated to a vision model when the
//     text-quality and table-confidence evaluators judge the local pass
//     unreliable
//   - .txt: plain text passthrough
//
// Every accepted file yields exactly one ProcessedFile with a single triage
// route. Extractor failures abort the whole batch; vision escalation
// failures degrade that file only.
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{VisionEnabled: true, Vision: client})
//	processed, err := pipe.ProcessFiles(ctx, files)
package docpipe

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/lanewise/ingest/pdfextract"
)

// FileKind is the extension/MIME classification of an uploaded file.
type FileKind int

const (
	KindSpreadsheet FileKind = iota + 1
	KindPDF
	KindDoc
	KindText
)

// Pipeline is the document triage and extraction engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	chain  *pdfextract.Chain
	vision Vision
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		chain:  pdfextract.DefaultChain(cfg.Logger),
		vision: cfg.Vision,
	}
}

var spreadsheetMIMEs = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel": true,
	"text/csv":                 true,
}

// Detect classifies a file by extension and declared MIME type. ok is false
// for unrecognized types, which are skipped rather than failed.
func Detect(name, mime string) (FileKind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls", ".csv":
		return KindSpreadsheet, true
	case ".pdf":
		return KindPDF, true
	case ".docx":
		return KindDoc, true
	case ".txt":
		return KindText, true
	}
	if spreadsheetMIMEs[strings.ToLower(mime)] {
		return KindSpreadsheet, true
	}
	return 0, false
}

// ProcessFiles runs triage and extraction over one batch, sequentially.
// Any extractor error aborts the entire batch: no partial results are
// returned. Vision escalation failures do not abort (see escalatePDF).
// Unrecognized file types are skipped.
func (p *Pipeline) ProcessFiles(ctx context.Context, files []UploadedFile) ([]ProcessedFile, error) {
	processed := make([]ProcessedFile, 0, len(files))

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled: %w", err)
		}
		if f.Size > p.cfg.MaxFileSize {
			return nil, fmt.Errorf("%s: file too large: %d bytes (max %d)", f.Name, f.Size, p.cfg.MaxFileSize)
		}

		kind, ok := Detect(f.Name, f.MIME)
		if !ok {
			p.logger.Debug("skipping unrecognized file type", "file", f.Name, "mime", f.MIME)
			continue
		}

		var pf ProcessedFile
		var err error
		switch kind {
		case KindSpreadsheet:
			pf, err = p.processSheet(f)
		case KindDoc:
			pf, err = p.processDoc(f)
		case KindText:
			pf, err = p.processText(f)
		case KindPDF:
			pf = p.processPDF(ctx, f)
		}
		if err != nil {
			return nil, fmt.Errorf("process %s: %w", f.Name, err)
		}

		p.logger.Debug("file processed", "file", f.Name, "route", pf.Triage.Route)
		processed = append(processed, pf)
	}

	return processed, nil
}

// processSheet handles Path A: structured spreadsheets, always local.
func (p *Pipeline) processSheet(f UploadedFile) (ProcessedFile, error) {
	columns, rows, rawRows, err := extractSheet(f.Name, f.Data)
	if err != nil {
		return ProcessedFile{}, err
	}
	return ProcessedFile{
		Name:    f.Name,
		Type:    TypeSpreadsheet,
		Columns: columns,
		Rows:    rows,
		RawRows: rawRows,
		Size:    f.Size,
		Triage: Triage{
			Route:           RouteSpreadsheet,
			Reason:          fmt.Sprintf("structured parse: %d rows, %d columns", len(rows), len(columns)),
			RecommendedTool: "local_sheet",
		},
		Metadata: map[string]string{"mime": f.MIME},
	}, nil
}

func (p *Pipeline) processDoc(f UploadedFile) (ProcessedFile, error) {
	text, err := extractDocx(f.Data)
	if err != nil {
		return ProcessedFile{}, err
	}
	if strings.TrimSpace(text) == "" {
		return ProcessedFile{}, fmt.Errorf("no text content in document")
	}
	// Quality here is informational only; it never changes the route.
	q := EvaluateText(text, 1)
	return ProcessedFile{
		Name: f.Name,
		Type: TypeDoc,
		Text: text,
		Size: f.Size,
		Triage: Triage{
			Route:           RouteTextDoc,
			Reason:          "docx text extraction",
			Quality:         q,
			RecommendedTool: "local_text",
		},
		Metadata: map[string]string{"mime": f.MIME},
	}, nil
}

func (p *Pipeline) processText(f UploadedFile) (ProcessedFile, error) {
	text := string(f.Data)
	if strings.TrimSpace(text) == "" {
		return ProcessedFile{}, fmt.Errorf("no text content in file")
	}
	q := EvaluateText(text, 1)
	return ProcessedFile{
		Name: f.Name,
		Type: TypeText,
		Text: text,
		Size: f.Size,
		Triage: Triage{
			Route:           RouteTextPlain,
			Reason:          "plain text passthrough",
			Quality:         q,
			RecommendedTool: "local_text",
		},
		Metadata: map[string]string{"mime": f.MIME},
	}, nil
}

// processPDF runs the escalation state machine: local extraction, quality
// scoring, then accept (Path B) or vision escalation (Path C). Local
// extraction failures are treated as "no usable text", not batch aborts.
func (p *Pipeline) processPDF(ctx context.Context, f UploadedFile) ProcessedFile {
	text := ""
	pages := 1
	strategy := ""
	if res, err := p.chain.Extract(f.Data); err != nil {
		p.logger.Debug("local pdf extraction failed", "file", f.Name, "error", err)
	} else {
		text = res.Text
		strategy = res.Strategy
		if res.Pages > 0 {
			pages = res.Pages
		}
	}

	q := EvaluateText(text, pages)
	decision := decidePDF(q, text, p.cfg.VisionEnabled)

	if decision.escalate {
		return p.escalatePDF(ctx, f, text, decision.reason, q)
	}

	return ProcessedFile{
		Name: f.Name,
		Type: TypePDF,
		Text: text,
		Size: f.Size,
		Triage: Triage{
			Route:           RouteTextPDF,
			Reason:          fmt.Sprintf("local extraction accepted (score %.2f)", q.Score),
			Quality:         q,
			RecommendedTool: "local_text",
		},
		Metadata: map[string]string{"mime": f.MIME, "strategy": strategy},
	}
}
