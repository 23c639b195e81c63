package docpipe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeVision struct {
	result *VisionResult
	err    error
	calls  int
	gotCtx context.Context
}

func (f *fakeVision) Escalate(ctx context.Context, data []byte, name, preview string) (*VisionResult, error) {
	f.calls++
	f.gotCtx = ctx
	return f.result, f.err
}

func quality(score float64, usable bool, tableScore float64) *TextQuality {
	return &TextQuality{
		Score:  score,
		Usable: usable,
		TableConfidence: &TableConfidence{
			Score:     tableScore,
			Threshold: tableThresholdSingle,
			Likely:    tableScore >= tableThresholdSingle,
		},
	}
}

func TestDecidePDF_AcceptClean(t *testing.T) {
	// WHAT: Usable non-empty text with intact tables stays local.
	// WHY: Escalation is expensive; a clean local pass must be accepted.
	d := decidePDF(quality(1.0, true, 0.5), "clean text", true)
	if d.escalate {
		t.Errorf("escalate = true (%s), want local accept", d.reason)
	}
}

func TestDecidePDF_TableStructureLoss(t *testing.T) {
	// WHAT: Bad text plus low table confidence escalates for table loss.
	// WHY: Lost table structure is unrecoverable locally.
	d := decidePDF(quality(0.5, false, 0.05), "garbled", true)
	if !d.escalate || d.reason != ReasonTableStructureLoss {
		t.Errorf("decision = %+v, want table_structure_loss escalation", d)
	}
}

func TestDecidePDF_TableLossRequiresVisionFlag(t *testing.T) {
	// WHAT: With vision disabled the same input falls through to the
	// low-quality reason instead.
	// WHY: The table-loss branch is gated on the vision flag; the
	// low-quality fallback is not.
	d := decidePDF(quality(0.5, false, 0.05), "garbled", false)
	if !d.escalate || d.reason != ReasonLowQualityText {
		t.Errorf("decision = %+v, want low_quality_text escalation", d)
	}
}

func TestDecidePDF_EmptyTextEscalates(t *testing.T) {
	// WHAT: Empty text escalates even when scored usable.
	// WHY: There is nothing local to accept.
	d := decidePDF(quality(1.0, true, 0.5), "", true)
	if !d.escalate {
		t.Error("escalate = false, want escalation on empty text")
	}
}

func TestEscalatePDF_Success(t *testing.T) {
	// WHAT: A successful vision call replaces the text and records the model.
	// WHY: Structured output is the whole point of escalating.
	fv := &fakeVision{result: &VisionResult{
		Structured: "| PO | Status |",
		RawText:    "PO Status",
		ModelID:    "test-model",
		Latency:    42 * time.Millisecond,
	}}
	p := New(Config{VisionEnabled: true, Vision: fv})

	pf := p.escalatePDF(context.Background(), UploadedFile{Name: "a.pdf"}, "local", ReasonTableStructureLoss, quality(0.5, false, 0))
	if pf.Text != "| PO | Status |" {
		t.Errorf("text = %q, want structured output", pf.Text)
	}
	if pf.Triage.Route != RouteVisionPDF {
		t.Errorf("route = %q, want %q", pf.Triage.Route, RouteVisionPDF)
	}
	if pf.Metadata["vision_model"] != "test-model" {
		t.Errorf("vision_model = %q, want test-model", pf.Metadata["vision_model"])
	}
	if fv.calls != 1 {
		t.Errorf("vision calls = %d, want 1", fv.calls)
	}
}

func TestEscalatePDF_FailureDegrades(t *testing.T) {
	// WHAT: A failing vision call keeps the local text and explains why.
	// WHY: Escalation failure must never abort the batch.
	fv := &fakeVision{err: errors.New("model offline")}
	p := New(Config{VisionEnabled: true, Vision: fv})

	pf := p.escalatePDF(context.Background(), UploadedFile{Name: "a.pdf"}, "degraded local", ReasonLowQualityText, quality(0.3, false, 0))
	if pf.Text != "degraded local" {
		t.Errorf("text = %q, want local text kept", pf.Text)
	}
	if !strings.Contains(pf.Triage.Reason, "degraded local text") {
		t.Errorf("reason = %q, want degraded-text note", pf.Triage.Reason)
	}
	if !strings.Contains(pf.Triage.Reason, "model offline") {
		t.Errorf("reason = %q, want underlying error mentioned", pf.Triage.Reason)
	}
}

func TestEscalatePDF_NoVisionConfigured(t *testing.T) {
	// WHAT: With no vision capability the file degrades in place.
	// WHY: Deployments without a vision endpoint still ingest PDFs.
	p := New(Config{})

	pf := p.escalatePDF(context.Background(), UploadedFile{Name: "a.pdf"}, "local only", ReasonTableStructureLoss, quality(0.3, false, 0))
	if pf.Text != "local only" {
		t.Errorf("text = %q, want local text kept", pf.Text)
	}
	if !strings.Contains(pf.Triage.Reason, "vision capability unavailable") {
		t.Errorf("reason = %q, want unavailable note", pf.Triage.Reason)
	}
	if !strings.Contains(pf.Triage.Reason, "degraded local text") {
		t.Errorf("reason = %q, want degraded-text note", pf.Triage.Reason)
	}
}

func TestEscalatePDF_EmptyVisionResult(t *testing.T) {
	// WHAT: A vision result with no content falls back to local text.
	// WHY: An empty answer is not better than a degraded one.
	fv := &fakeVision{result: &VisionResult{ModelID: "m"}}
	p := New(Config{VisionEnabled: true, Vision: fv})

	pf := p.escalatePDF(context.Background(), UploadedFile{Name: "a.pdf"}, "local", ReasonLowQualityText, quality(0.3, false, 0))
	if pf.Text != "local" {
		t.Errorf("text = %q, want local fallback", pf.Text)
	}
}

func TestPreview_Truncates(t *testing.T) {
	// WHAT: Previews are capped at 500 runes.
	// WHY: The escalation prompt should not carry whole documents.
	long := strings.Repeat("x", 2000)
	if got := preview(long); len([]rune(got)) != previewLimit {
		t.Errorf("preview length = %d, want %d", len([]rune(got)), previewLimit)
	}
	if got := preview("short"); got != "short" {
		t.Errorf("preview = %q, want unchanged", got)
	}
}
