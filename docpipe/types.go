package docpipe

// Route classifies an uploaded file and determines which extractor handles it.
type Route string

const (
	RouteSpreadsheet Route = "structured_spreadsheet"
	RouteTextPDF     Route = "text_pdf"
	RouteTextDoc     Route = "text_doc"
	RouteTextPlain   Route = "text_plain"
	RouteVisionPDF   Route = "vision_pdf"
)

// FileType identifies the payload shape of a ProcessedFile.
type FileType string

const (
	TypeSpreadsheet FileType = "spreadsheet"
	TypePDF         FileType = "pdf"
	TypeDoc         FileType = "doc"
	TypeText        FileType = "text"
)

// UploadedFile is one raw file submitted for ingestion. Owned by the caller
// for the duration of a single ProcessFiles call.
type UploadedFile struct {
	Name string
	MIME string
	Size int64
	Data []byte
}

// Row is one spreadsheet row keyed by header name.
type Row = map[string]string

// Triage records how a file was routed and why. A file is assigned exactly
// one route; the route fully determines which extractor produced the payload.
type Triage struct {
	Route           Route        `json:"route"`
	Reason          string       `json:"reason"`
	Quality         *TextQuality `json:"quality,omitempty"`
	RecommendedTool string       `json:"recommended_tool,omitempty"`
}

// ProcessedFile is the unit handed downstream. Immutable after creation.
type ProcessedFile struct {
	Name      string            `json:"name"`
	Type      FileType          `json:"type"`
	Text      string            `json:"text,omitempty"`
	Columns   []string          `json:"columns,omitempty"`
	Rows      []Row             `json:"rows,omitempty"`
	// RawRows holds the trimmed cell values before error tokens are
	// blanked, so quality analysis can still see formula errors. Not
	// part of the persisted payload.
	RawRows   []Row             `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Triage    Triage            `json:"triage"`
	Size      int64             `json:"size"`
	Artifacts []string          `json:"artifacts,omitempty"`
}

// Tabular reports whether the file carries row data.
func (p *ProcessedFile) Tabular() bool {
	return p.Type == TypeSpreadsheet && len(p.Rows) > 0
}
