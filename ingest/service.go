// Package ingest wires the document pipeline, artifact storage, manifest
// bookkeeping, and row-quality analysis into one batch ingestion service.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lanewise/ingest/audit"
	"github.com/lanewise/ingest/blob"
	"github.com/lanewise/ingest/docpipe"
	"github.com/lanewise/ingest/idgen"
	"github.com/lanewise/ingest/manifest"
	"github.com/lanewise/ingest/rowquality"
)

// Service is the batch ingestion orchestrator.
type Service struct {
	pipe      *docpipe.Pipeline
	blobs     blob.Store
	manifests *manifest.Store
	trail     *audit.Logger
	logger    *slog.Logger
	newID     idgen.Generator

	pipeCfg docpipe.Config
}

// Option configures a Service.
type Option func(*Service)

// WithVision sets the escalation capability handed to the pipeline. The
// client alone serves low-quality fallback escalations; escalation on table
// structure loss is gated separately by WithTableEscalation.
func WithVision(v docpipe.Vision) Option {
	return func(s *Service) { s.pipeCfg.Vision = v }
}

// WithTableEscalation toggles escalation of PDFs whose table structure was
// lost during local extraction.
func WithTableEscalation(on bool) Option {
	return func(s *Service) { s.pipeCfg.VisionEnabled = on }
}

// WithBlobStore sets the artifact store.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) { s.blobs = b }
}

// WithManifest sets the manifest store.
func WithManifest(m *manifest.Store) Option {
	return func(s *Service) { s.manifests = m }
}

// WithAudit sets the audit trail. Nil disables auditing.
func WithAudit(a *audit.Logger) Option {
	return func(s *Service) { s.trail = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIDGenerator sets the generator for batch IDs.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Service) { s.newID = g }
}

// WithMaxFileSize caps the size of a single uploaded file.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) { s.pipeCfg.MaxFileSize = n }
}

// New creates a fully wired service. A blob store is required; the manifest
// store defaults to one over the same blobs.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		logger: slog.Default(),
		newID:  idgen.Prefixed("batch_", idgen.Default),
	}
	for _, o := range opts {
		o(s)
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("ingest: blob store is required")
	}
	if s.manifests == nil {
		s.manifests = manifest.NewStore(s.blobs)
	}
	s.pipeCfg.Logger = s.logger
	s.pipe = docpipe.New(s.pipeCfg)
	return s, nil
}

// FileResult pairs one processed file with its stored artifacts and, for
// tracking spreadsheets, its quality report.
type FileResult struct {
	File    docpipe.ProcessedFile `json:"file"`
	RawKey  string                `json:"raw_key"`
	DataKey string                `json:"data_key"`
	Report  *rowquality.Report    `json:"report,omitempty"`
}

// BatchResult is the outcome of one successful batch.
type BatchResult struct {
	BatchID  string             `json:"batch_id"`
	Tenant   string             `json:"tenant"`
	Persona  string             `json:"persona"`
	Files    []FileResult       `json:"files"`
	Manifest *manifest.Manifest `json:"manifest"`
	Elapsed  time.Duration      `json:"elapsed"`
}

// ProcessBatch ingests one batch for a tenant/persona pair: triage and
// extraction, artifact persistence, row-quality analysis for tracking
// spreadsheets, then a single serialized manifest update. Any batch error
// leaves the manifest untouched.
func (s *Service) ProcessBatch(ctx context.Context, tenant, persona string, files []docpipe.UploadedFile) (*BatchResult, error) {
	if tenant == "" || persona == "" {
		return nil, fmt.Errorf("ingest: tenant and persona are required")
	}

	start := time.Now()
	batchID := s.newID()
	log := s.logger.With("tenant", tenant, "persona", persona, "batch", batchID)

	processed, err := s.pipe.ProcessFiles(ctx, files)
	if err != nil {
		log.Error("batch aborted", "error", err)
		s.auditBatch(tenant, persona, batchID, len(files), err, time.Since(start))
		return nil, err
	}

	raw := make(map[string][]byte, len(files))
	for _, f := range files {
		raw[f.Name] = f.Data
	}

	result := &BatchResult{
		BatchID: batchID,
		Tenant:  tenant,
		Persona: persona,
		Files:   make([]FileResult, 0, len(processed)),
	}

	for i := range processed {
		pf := &processed[i]
		fr, err := s.persistFile(ctx, tenant, persona, batchID, pf, raw[pf.Name])
		if err != nil {
			log.Error("artifact persistence failed", "file", pf.Name, "error", err)
			s.auditBatch(tenant, persona, batchID, len(files), err, time.Since(start))
			return nil, err
		}
		result.Files = append(result.Files, fr)
	}

	m, err := s.manifests.Update(ctx, tenant, persona, func(m *manifest.Manifest) error {
		for _, fr := range result.Files {
			m.Upsert(manifest.Entry{
				Name:        fr.File.Name,
				Type:        string(fr.File.Type),
				Route:       string(fr.File.Triage.Route),
				Size:        fr.File.Size,
				RowCount:    len(fr.File.Rows),
				TextChars:   len(fr.File.Text),
				ArtifactKey: fr.DataKey,
				IngestedAt:  time.Now().UTC(),
			})
		}
		return nil
	})
	if err != nil {
		log.Error("manifest update failed", "error", err)
		s.auditBatch(tenant, persona, batchID, len(files), err, time.Since(start))
		return nil, fmt.Errorf("ingest: manifest update: %w", err)
	}

	result.Manifest = m
	result.Elapsed = time.Since(start)
	s.auditBatch(tenant, persona, batchID, len(files), nil, result.Elapsed)
	log.Info("batch ingested", "files", len(result.Files), "elapsed", result.Elapsed)
	return result, nil
}

func (s *Service) auditBatch(tenant, persona, batchID string, fileCount int, err error, elapsed time.Duration) {
	if s.trail == nil {
		return
	}
	s.trail.LogAsync(s.trail.Record(tenant, persona, audit.OpBatchIngest, batchID,
		map[string]int{"files": fileCount}, err, elapsed))
}

// persistFile writes the raw upload and the extracted payload, then runs
// row-quality analysis when the file is a tracking spreadsheet.
func (s *Service) persistFile(ctx context.Context, tenant, persona, batchID string, pf *docpipe.ProcessedFile, rawData []byte) (FileResult, error) {
	prefix := fmt.Sprintf("tenants/%s/%s/%s/%s", tenant, persona, batchID, pf.Name)

	fr := FileResult{}
	if rawData != nil {
		key := prefix + ".raw"
		if _, err := s.blobs.Save(ctx, key, rawData, pf.Metadata["mime"]); err != nil {
			return fr, fmt.Errorf("save raw %s: %w", pf.Name, err)
		}
		fr.RawKey = key
		pf.Artifacts = append(pf.Artifacts, key)
	}

	payload, err := json.Marshal(pf)
	if err != nil {
		return fr, fmt.Errorf("encode payload %s: %w", pf.Name, err)
	}
	dataKey := prefix + ".json"
	if _, err := s.blobs.Save(ctx, dataKey, payload, "application/json"); err != nil {
		return fr, fmt.Errorf("save payload %s: %w", pf.Name, err)
	}
	fr.DataKey = dataKey
	pf.Artifacts = append(pf.Artifacts, dataKey)

	if pf.Tabular() && isTrackingSheet(pf) {
		// Analyze the pre-cleaning values: error tokens are blanked in
		// Rows, and the analyzer must still see them as formula errors.
		rows := pf.Rows
		if pf.RawRows != nil {
			rows = pf.RawRows
		}
		report, err := rowquality.Analyze(rows, pf.Columns)
		if err != nil {
			return fr, fmt.Errorf("analyze %s: %w", pf.Name, err)
		}
		reportJSON, err := json.Marshal(report)
		if err != nil {
			return fr, fmt.Errorf("encode report %s: %w", pf.Name, err)
		}
		reportKey := prefix + ".report.json"
		if _, err := s.blobs.Save(ctx, reportKey, reportJSON, "application/json"); err != nil {
			return fr, fmt.Errorf("save report %s: %w", pf.Name, err)
		}
		fr.Report = report
		pf.Artifacts = append(pf.Artifacts, reportKey)
		s.logger.Debug("row quality analyzed",
			"file", pf.Name, "score", report.QualityScore, "issues", report.Summary.TotalIssues)
	}

	fr.File = *pf
	return fr, nil
}

// isTrackingSheet reports whether the spreadsheet looks like an operational
// tracking sheet: at least one critical-tagged column, or a filename that
// mentions tracking.
func isTrackingSheet(pf *docpipe.ProcessedFile) bool {
	if strings.Contains(strings.ToLower(pf.Name), "tracking") {
		return true
	}
	for _, c := range pf.Columns {
		if rowquality.Classify(c).Has(rowquality.TagCritical) {
			return true
		}
	}
	return false
}
