package rowquality

// Severity of a row-level finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Issue is one row-level finding. Row numbers are 1-indexed with a header
// offset: data row i maps to sheet row i+2.
type Issue struct {
	Row        int      `json:"row"`
	Column     string   `json:"column"`
	Issue      string   `json:"issue"`
	Severity   Severity `json:"severity"`
	Value      string   `json:"value"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Duplicate reports a value shared by several rows of an id-like column.
type Duplicate struct {
	Column string `json:"column"`
	Value  string `json:"value"`
	Rows   []int  `json:"rows"`
	Count  int    `json:"count"`
}

// Recommendation is a remediation hint attached to the report.
type Recommendation struct {
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Action   string `json:"action,omitempty"`
}

// Summary aggregates issue counts.
type Summary struct {
	TotalIssues    int `json:"total_issues"`
	CriticalCount  int `json:"critical_count"`
	WarningCount   int `json:"warning_count"`
	DuplicateCount int `json:"duplicate_count"`
}

// Details records what the analyzer looked at.
type Details struct {
	CriticalFields  []string `json:"critical_fields"`
	AnalyzedColumns int      `json:"analyzed_columns"`
}

// Report is the quality report over one tabular document. Findings are the
// product output, never errors: a report with score 0 is still a valid
// report.
type Report struct {
	TotalRows       int              `json:"total_rows"`
	CompleteRows    int              `json:"complete_rows"`
	IncompleteRows  int              `json:"incomplete_rows"`
	QualityScore    int              `json:"quality_score"`
	CriticalIssues  []Issue          `json:"critical_issues"`
	Warnings        []Issue          `json:"warnings"`
	Duplicates      []Duplicate      `json:"duplicates"`
	DateWarnings    []string         `json:"date_warnings,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         Summary          `json:"summary"`
	Details         Details          `json:"details"`
}
