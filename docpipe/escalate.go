package docpipe

import (
	"context"
	"fmt"
	"time"
)

// Escalation reasons surfaced in triage notes.
const (
	ReasonTableStructureLoss = "table_structure_loss"
	ReasonLowQualityText     = "low_quality_text"
	ReasonEscalatedForTables = "escalated_for_tables"
)

// VisionResult is what the external vision capability returns for one file.
type VisionResult struct {
	RawText    string
	Structured string
	ModelID    string
	Latency    time.Duration
}

// Vision is the external vision-capable extraction model, consulted only
// when local PDF extraction is judged unreliable. Fallible; callers must
// degrade gracefully.
type Vision interface {
	Escalate(ctx context.Context, data []byte, name, preview string) (*VisionResult, error)
}

// pdfDecision is the outcome of the escalation state machine for one PDF.
type pdfDecision struct {
	escalate bool
	reason   string
}

// decidePDF implements the escalation decision over the local extraction
// result. The table-loss escalation requires the vision flag; the
// low-quality fallback escalation does not, so badly degraded text always
// leaves the local path even when vision is disabled.
func decidePDF(q *TextQuality, text string, visionEnabled bool) pdfDecision {
	threshold := tableThresholdMulti
	tableScore := 0.0
	if tc := q.TableConfidence; tc != nil {
		threshold = tc.Threshold
		tableScore = tc.Score
	}
	tableLikelyLost := tableScore < threshold
	textLooksBad := !q.Usable || q.Score < escalationScoreFloor

	if visionEnabled && tableLikelyLost && textLooksBad {
		return pdfDecision{escalate: true, reason: ReasonTableStructureLoss}
	}
	if q.Usable && text != "" {
		return pdfDecision{}
	}
	if textLooksBad {
		return pdfDecision{escalate: true, reason: ReasonLowQualityText}
	}
	return pdfDecision{escalate: true, reason: ReasonEscalatedForTables}
}

// previewLimit bounds the local-text preview handed to the vision model.
const previewLimit = 500

func preview(text string) string {
	r := []rune(text)
	if len(r) > previewLimit {
		r = r[:previewLimit]
	}
	return string(r)
}

// escalatePDF calls the vision capability with a timeout. Failures degrade
// to the local text with an explanatory triage note; they never abort the
// batch (contrast with local extractor failures, which do).
func (p *Pipeline) escalatePDF(ctx context.Context, f UploadedFile, localText, reason string, q *TextQuality) ProcessedFile {
	pf := ProcessedFile{
		Name: f.Name,
		Type: TypePDF,
		Size: f.Size,
		Triage: Triage{
			Route:           RouteVisionPDF,
			Quality:         q,
			RecommendedTool: "vision_model",
		},
		Metadata: map[string]string{"mime": f.MIME},
	}

	if p.vision == nil {
		pf.Text = localText
		pf.Triage.Reason = fmt.Sprintf("escalated (%s) but vision capability unavailable; keeping degraded local text", reason)
		p.logger.Warn("vision escalation unavailable", "file", f.Name, "reason", reason)
		return pf
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.VisionTimeout)
	defer cancel()

	res, err := p.vision.Escalate(callCtx, f.Data, f.Name, preview(localText))
	if err != nil {
		pf.Text = localText
		pf.Triage.Reason = fmt.Sprintf("escalation failed (%s): %v; keeping degraded local text", reason, err)
		p.logger.Warn("vision escalation failed", "file", f.Name, "reason", reason, "error", err)
		return pf
	}

	switch {
	case res.Structured != "":
		pf.Text = res.Structured
	case res.RawText != "":
		pf.Text = res.RawText
	default:
		// Vision returned nothing usable; keep whatever the quick pass got.
		pf.Text = localText
	}
	pf.Triage.Reason = fmt.Sprintf("escalated: %s", reason)
	pf.Metadata["vision_model"] = res.ModelID
	pf.Metadata["vision_latency_ms"] = fmt.Sprintf("%d", res.Latency.Milliseconds())
	p.logger.Debug("vision escalation complete",
		"file", f.Name, "reason", reason, "model", res.ModelID, "latency", res.Latency)
	return pf
}
