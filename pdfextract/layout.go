package pdfextract

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Layout extracts text with position awareness: glyphs are grouped into rows
// and word blocks, aligned grids are detected, and detected grids are
// rendered as markdown tables so the structure survives downstream as text.
type Layout struct {
	// RowTolerance is the Y distance within which glyphs belong to one row.
	RowTolerance float64
	// WordGapFactor scales font size to the gap that separates words.
	WordGapFactor float64
	// MinTableRows and MinTableCols gate table detection.
	MinTableRows int
	MinTableCols int
}

// NewLayout returns the layout strategy with production defaults.
func NewLayout() *Layout {
	return &Layout{
		RowTolerance:  3.0,
		WordGapFactor: 0.3,
		MinTableRows:  2,
		MinTableCols:  2,
	}
}

// Name implements Strategy.
func (l *Layout) Name() string { return "layout" }

// Extract implements Strategy.
func (l *Layout) Extract(data []byte) (res *Result, err error) {
	// The underlying reader panics on some malformed xref tables; convert
	// that to an error so the chain can fall back to the basic strategy.
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("layout extraction panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text := l.extractPage(page)
		if text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no text content found in PDF")
	}

	return &Result{Text: strings.Join(pages, "\n\n"), Pages: total}, nil
}

// block is a word-level unit with its position on the page.
type block struct {
	x, y, w  float64
	fontSize float64
	text     string
}

func (l *Layout) extractPage(page pdf.Page) string {
	content := page.Content()
	texts := make([]pdf.Text, 0, len(content.Text))
	for _, t := range content.Text {
		if s := strings.TrimSpace(t.S); s != "" && s != "\n" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return ""
	}

	rows := l.groupRows(texts)
	blocks := l.mergeWords(rows)

	if table := l.detectTable(blocks); table != nil {
		return l.renderWithTable(blocks, table)
	}
	return l.renderLines(blocks)
}

// groupRows buckets glyphs by Y coordinate within RowTolerance and returns
// rows ordered top to bottom (PDF Y grows upward).
func (l *Layout) groupRows(texts []pdf.Text) [][]pdf.Text {
	type bucket struct {
		yMin, yMax float64
		texts      []pdf.Text
	}
	var buckets []bucket

	for _, t := range texts {
		placed := false
		for i := range buckets {
			if t.Y >= buckets[i].yMin-l.RowTolerance && t.Y <= buckets[i].yMax+l.RowTolerance {
				buckets[i].texts = append(buckets[i].texts, t)
				buckets[i].yMin = math.Min(buckets[i].yMin, t.Y)
				buckets[i].yMax = math.Max(buckets[i].yMax, t.Y)
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, bucket{yMin: t.Y, yMax: t.Y, texts: []pdf.Text{t}})
		}
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].yMax > buckets[j].yMax })

	rows := make([][]pdf.Text, len(buckets))
	for i, b := range buckets {
		sort.Slice(b.texts, func(x, y int) bool { return b.texts[x].X < b.texts[y].X })
		rows[i] = b.texts
	}
	return rows
}

// mergeWords merges adjacent glyphs in each row into word blocks, splitting
// where the X gap exceeds the word threshold.
func (l *Layout) mergeWords(rows [][]pdf.Text) []block {
	var blocks []block
	for _, row := range rows {
		var cur *block
		for _, t := range row {
			if cur == nil {
				b := block{x: t.X, y: t.Y, w: t.W, fontSize: t.FontSize, text: t.S}
				cur = &b
				continue
			}
			threshold := l.WordGapFactor * cur.fontSize
			if cur.fontSize == 0 {
				threshold = 3.0
			}
			gap := t.X - (cur.x + cur.w)
			if gap <= threshold {
				cur.w = t.X + t.W - cur.x
				cur.text += t.S
			} else {
				blocks = append(blocks, *cur)
				b := block{x: t.X, y: t.Y, w: t.W, fontSize: t.FontSize, text: t.S}
				cur = &b
			}
		}
		if cur != nil {
			blocks = append(blocks, *cur)
		}
	}
	return blocks
}

// grid is a detected table: cell text addressed by [row][col].
type grid struct {
	cells   [][]string
	topY    float64
	bottomY float64
}

// detectTable looks for blocks aligned on a consistent X/Y lattice. At least
// MinTableCols X positions must repeat across MinTableRows rows with roughly
// even spacing; otherwise the page is treated as running text.
func (l *Layout) detectTable(blocks []block) *grid {
	if len(blocks) < l.MinTableRows*l.MinTableCols {
		return nil
	}

	const xBucket, yBucket = 5.0, 3.0
	xCounts := map[int]int{}
	yCounts := map[int]int{}
	for _, b := range blocks {
		xCounts[int(b.x/xBucket)]++
		yCounts[int(b.y/yBucket)]++
	}

	var colXs, rowYs []float64
	for k, n := range xCounts {
		if n >= 3 {
			colXs = append(colXs, float64(k)*xBucket)
		}
	}
	for k, n := range yCounts {
		if n >= 2 {
			rowYs = append(rowYs, float64(k)*yBucket)
		}
	}
	if len(colXs) < l.MinTableCols || len(rowYs) < l.MinTableRows {
		return nil
	}

	sort.Float64s(colXs)
	sort.Sort(sort.Reverse(sort.Float64Slice(rowYs))) // top of page first

	if !evenSpacing(colXs, 0.3) || !evenSpacing(rowYs, 0.3) {
		return nil
	}

	g := &grid{
		cells:   make([][]string, len(rowYs)),
		topY:    rowYs[0],
		bottomY: rowYs[len(rowYs)-1],
	}
	for r := range g.cells {
		g.cells[r] = make([]string, len(colXs))
	}

	for _, b := range blocks {
		r := nearestIndex(rowYs, b.y, yBucket*2)
		c := nearestIndex(colXs, b.x, xBucket*2)
		if r < 0 || c < 0 {
			continue
		}
		if g.cells[r][c] != "" {
			g.cells[r][c] += " "
		}
		g.cells[r][c] += b.text
	}
	return g
}

func nearestIndex(positions []float64, v, tolerance float64) int {
	for i, p := range positions {
		if math.Abs(v-p) < tolerance {
			return i
		}
	}
	return -1
}

// evenSpacing reports whether consecutive positions are spaced within
// tolerance of their mean gap.
func evenSpacing(positions []float64, tolerance float64) bool {
	if len(positions) < 2 {
		return false
	}
	gaps := make([]float64, 0, len(positions)-1)
	var sum float64
	for i := 1; i < len(positions); i++ {
		g := math.Abs(positions[i] - positions[i-1])
		gaps = append(gaps, g)
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean == 0 {
		return false
	}
	for _, g := range gaps {
		if math.Abs(g-mean)/mean > tolerance {
			return false
		}
	}
	return true
}

// renderWithTable emits text above the grid, the grid as a markdown table,
// then text below it.
func (l *Layout) renderWithTable(blocks []block, g *grid) string {
	var before, after []block
	for _, b := range blocks {
		switch {
		case b.y > g.topY+l.RowTolerance*2:
			before = append(before, b)
		case b.y < g.bottomY-l.RowTolerance*2:
			after = append(after, b)
		}
	}

	var sb strings.Builder
	if len(before) > 0 {
		sb.WriteString(l.renderLines(before))
		sb.WriteString("\n\n")
	}
	sb.WriteString(renderMarkdownTable(g.cells))
	if len(after) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(l.renderLines(after))
	}
	return sb.String()
}

// renderLines emits blocks as plain lines, breaking on Y changes.
func (l *Layout) renderLines(blocks []block) string {
	var sb strings.Builder
	lastY := math.Inf(1)
	for i, b := range blocks {
		if i > 0 {
			if math.Abs(lastY-b.y) > l.RowTolerance {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(b.text)
		lastY = b.y
	}
	return sb.String()
}

// renderMarkdownTable renders cells as a markdown table. The first row is
// treated as the header.
func renderMarkdownTable(cells [][]string) string {
	if len(cells) == 0 {
		return ""
	}
	cols := len(cells[0])

	var sb strings.Builder
	writeRow := func(row []string) {
		sb.WriteString("|")
		for c := 0; c < cols; c++ {
			val := ""
			if c < len(row) {
				val = strings.ReplaceAll(row[c], "|", "\\|")
			}
			sb.WriteString(" ")
			sb.WriteString(val)
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	writeRow(cells[0])
	sb.WriteString("|")
	for c := 0; c < cols; c++ {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, row := range cells[1:] {
		writeRow(row)
	}
	return strings.TrimRight(sb.String(), "\n")
}
