package docpipe

import (
	"fmt"
	"strings"
	"unicode"
)

// TextQuality captures metrics about extracted text quality. Derived purely
// from the text; recomputed on every evaluation.
type TextQuality struct {
	Score             float64          `json:"score"`
	Usable            bool             `json:"usable"`
	Reason            string           `json:"reason"`
	Length            int              `json:"length"`
	WordCount         int              `json:"word_count"`
	AvgWordLen        float64          `json:"avg_word_len"`
	NonPrintableRatio float64          `json:"non_printable_ratio"`
	LetterRatio       float64          `json:"letter_ratio"`
	PageCount         int              `json:"page_count"`
	TableConfidence   *TableConfidence `json:"table_confidence,omitempty"`
}

// TableConfidence scores raw text for alignment patterns that indicate a
// table flattened by naive extraction. Independent of TextQuality but
// consumed alongside it.
type TableConfidence struct {
	Likely          bool    `json:"likely"`
	Score           float64 `json:"score"`
	Threshold       float64 `json:"threshold"`
	Reason          string  `json:"reason"`
	TotalLines      int     `json:"total_lines"`
	RichLines       int     `json:"rich_lines"`
	PipeLines       int     `json:"pipe_lines"`
	TabLines        int     `json:"tab_lines"`
	MultiSpaceLines int     `json:"multi_space_lines"`
}

// Minimum usable text length: max(tooShortFloor, pages*tooShortPerPage).
const (
	tooShortFloor   = 150
	tooShortPerPage = 120

	maxAvgWordLen        = 16.0
	minLetterRatio       = 0.25
	maxNonPrintableRatio = 0.35
	tableThresholdSingle = 0.18
	tableThresholdMulti  = 0.25
	escalationScoreFloor = 0.7
)

// EvaluateText scores extracted text for likely corruption or garbling.
// pages defaults to 1 when <= 0.
func EvaluateText(text string, pages int) *TextQuality {
	if pages <= 0 {
		pages = 1
	}

	collapsed := collapseWhitespace(text)
	q := &TextQuality{PageCount: pages}
	if collapsed == "" {
		q.Reason = "No text extracted"
		q.TableConfidence = EvaluateTableConfidence(text, pages)
		return q
	}

	q.Length = len([]rune(collapsed))

	words := strings.Fields(collapsed)
	q.WordCount = len(words)
	if q.WordCount > 0 {
		total := 0
		for _, w := range words {
			total += len([]rune(w))
		}
		q.AvgWordLen = float64(total) / float64(q.WordCount)
	}

	nonPrintable := 0
	letters := 0
	for _, r := range collapsed {
		if !isPrintableASCII(r) {
			nonPrintable++
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	q.NonPrintableRatio = float64(nonPrintable) / float64(q.Length)
	q.LetterRatio = float64(letters) / float64(q.Length)

	minLen := tooShortFloor
	if perPage := pages * tooShortPerPage; perPage > minLen {
		minLen = perPage
	}

	var issues []string
	if q.Length < minLen {
		issues = append(issues, fmt.Sprintf("text too short (%d < %d)", q.Length, minLen))
	}
	if q.AvgWordLen > maxAvgWordLen {
		issues = append(issues, fmt.Sprintf("average word length %.1f exceeds %.0f", q.AvgWordLen, maxAvgWordLen))
	}
	if q.LetterRatio < minLetterRatio {
		issues = append(issues, fmt.Sprintf("letter ratio %.2f below %.2f", q.LetterRatio, minLetterRatio))
	}
	if q.NonPrintableRatio > maxNonPrintableRatio {
		issues = append(issues, fmt.Sprintf("non-printable ratio %.2f exceeds %.2f", q.NonPrintableRatio, maxNonPrintableRatio))
	}

	q.Score = clamp01(1 - 0.25*float64(len(issues)))
	q.Usable = len(issues) == 0
	if q.Usable {
		q.Reason = "text looks clean"
	} else {
		q.Reason = strings.Join(issues, "; ")
	}

	q.TableConfidence = EvaluateTableConfidence(text, pages)
	return q
}

// EvaluateTableConfidence scores raw text line structure for lost tables.
// A line is "rich" when it carries at least two pipes, two tabs, or two
// runs of consecutive spaces.
func EvaluateTableConfidence(text string, pages int) *TableConfidence {
	if pages <= 0 {
		pages = 1
	}

	tc := &TableConfidence{Threshold: tableThresholdSingle}
	if pages >= 2 {
		tc.Threshold = tableThresholdMulti
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		tc.TotalLines++

		pipes := strings.Count(line, "|")
		tabs := strings.Count(line, "\t")
		multiSpace := countDoubleSpaceRuns(line)

		rich := false
		if pipes >= 2 {
			tc.PipeLines++
			rich = true
		}
		if tabs >= 2 {
			tc.TabLines++
			rich = true
		}
		if multiSpace >= 2 {
			tc.MultiSpaceLines++
			rich = true
		}
		if rich {
			tc.RichLines++
		}
	}

	if tc.TotalLines == 0 {
		tc.Reason = "no content lines"
		return tc
	}

	n := float64(tc.TotalLines)
	richRatio := float64(tc.RichLines) / n
	pipeRatio := float64(tc.PipeLines) / n
	tabRatio := float64(tc.TabLines) / n
	multiRatio := float64(tc.MultiSpaceLines) / n

	score := 0.6*richRatio + 1.5*pipeRatio + 1.5*tabRatio + 0.5*multiRatio
	if score > 1 {
		score = 1
	}
	tc.Score = score
	tc.Likely = score >= tc.Threshold
	if tc.Likely {
		tc.Reason = fmt.Sprintf("%d of %d lines show table alignment", tc.RichLines, tc.TotalLines)
	} else {
		tc.Reason = "no consistent alignment pattern"
	}
	return tc
}

// countDoubleSpaceRuns counts runs of two or more consecutive spaces.
func countDoubleSpaceRuns(line string) int {
	runs := 0
	spaces := 0
	for _, r := range line {
		if r == ' ' {
			spaces++
			continue
		}
		if spaces >= 2 {
			runs++
		}
		spaces = 0
	}
	if spaces >= 2 {
		runs++
	}
	return runs
}

// isPrintableASCII reports whether r counts as printable for the
// non-printable ratio: tab, LF, CR, or the printable ASCII range.
func isPrintableASCII(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return r >= 0x20 && r <= 0x7e
}

func collapseWhitespace(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
