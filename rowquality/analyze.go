// Package rowquality audits extracted tabular rows and produces a quality
// report: missing critical fields, spreadsheet formula errors, placeholder
// values, duplicate identifiers, inconsistent date formats, and a composite
// 0-100 score. Analysis is a pure function of its inputs and never fails on
// malformed (but well-typed) data.
package rowquality

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// formulaErrorRe matches the spreadsheet error tokens that the extraction
// layer blanks during cleaning. Rows analyzed from other sources may still
// carry them verbatim.
var formulaErrorRe = regexp.MustCompile(`^#(N/A|REF!|VALUE!|DIV/0!|NUM!|NAME\?|NULL!)$`)

var placeholderValues = map[string]bool{
	"tbd":     true,
	"pending": true,
	"???":     true,
}

// Analyze produces a quality report over header-keyed rows. It errors only
// on structurally invalid input (nil rows, no columns); data findings are
// reported, never returned as errors.
func Analyze(rows []map[string]string, columns []string) (*Report, error) {
	if rows == nil {
		return nil, errors.New("rows must not be nil")
	}
	if len(columns) == 0 {
		return nil, errors.New("columns must not be empty")
	}

	critical := criticalFields(columns)
	r := &Report{
		TotalRows: len(rows),
		Details: Details{
			CriticalFields:  critical,
			AnalyzedColumns: len(columns),
		},
	}

	emptyCells := 0
	errorCells := 0

	for i, row := range rows {
		sheetRow := i + 2 // 1-indexed plus header row
		rowCritical := false

		for _, col := range critical {
			if strings.TrimSpace(row[col]) == "" {
				rowCritical = true
				emptyCells++
				r.CriticalIssues = append(r.CriticalIssues, Issue{
					Row:        sheetRow,
					Column:     col,
					Issue:      "Missing value",
					Severity:   SeverityCritical,
					Suggestion: fmt.Sprintf("fill in %s or remove the row", col),
				})
			}
		}

		for _, col := range columns {
			v := strings.TrimSpace(row[col])
			if v == "" {
				continue
			}
			if formulaErrorRe.MatchString(strings.ToUpper(v)) {
				rowCritical = true
				errorCells++
				r.CriticalIssues = append(r.CriticalIssues, Issue{
					Row:        sheetRow,
					Column:     col,
					Issue:      "Formula error detected",
					Severity:   SeverityCritical,
					Value:      v,
					Suggestion: "fix the source formula and re-export",
				})
			} else if placeholderValues[strings.ToLower(v)] {
				r.Warnings = append(r.Warnings, Issue{
					Row:      sheetRow,
					Column:   col,
					Issue:    "Placeholder value detected",
					Severity: SeverityWarning,
					Value:    v,
				})
			}
		}

		if rowCritical {
			r.IncompleteRows++
		} else {
			r.CompleteRows++
		}
	}

	r.Duplicates = findDuplicates(rows, columns)
	r.DateWarnings = dateConsistency(rows, columns)

	r.QualityScore = score(len(rows), len(critical), emptyCells, errorCells)
	r.Recommendations = recommendations(r.IncompleteRows, errorCells)

	r.Summary = Summary{
		TotalIssues:    len(r.CriticalIssues) + len(r.Warnings) + len(r.DateWarnings),
		CriticalCount:  len(r.CriticalIssues),
		WarningCount:   len(r.Warnings) + len(r.DateWarnings),
		DuplicateCount: len(r.Duplicates),
	}
	return r, nil
}

// findDuplicates groups values of id-like columns and reports any value
// shared by two or more rows, with 1-indexed header-offset row numbers.
func findDuplicates(rows []map[string]string, columns []string) []Duplicate {
	var dups []Duplicate
	for _, col := range columns {
		if !Classify(col).Has(TagID) {
			continue
		}
		seen := map[string][]int{}
		for i, row := range rows {
			v := strings.TrimSpace(row[col])
			if v == "" {
				continue
			}
			seen[v] = append(seen[v], i+2)
		}
		values := make([]string, 0, len(seen))
		for v, at := range seen {
			if len(at) >= 2 {
				values = append(values, v)
			}
		}
		sort.Strings(values)
		for _, v := range values {
			dups = append(dups, Duplicate{Column: col, Value: v, Rows: seen[v], Count: len(seen[v])})
		}
	}
	return dups
}

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	usDateRe  = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
	euDateRe  = regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`)
)

func dateFormat(v string) string {
	switch {
	case isoDateRe.MatchString(v):
		return "YYYY-MM-DD"
	case usDateRe.MatchString(v):
		return "MM/DD/YYYY"
	case euDateRe.MatchString(v):
		return "DD-MM-YYYY"
	default:
		return "unknown"
	}
}

// dateConsistency warns when a date-like column mixes more than one format.
func dateConsistency(rows []map[string]string, columns []string) []string {
	var warnings []string
	for _, col := range columns {
		if !Classify(col).Has(TagDate) {
			continue
		}
		formats := map[string]bool{}
		for _, row := range rows {
			v := strings.TrimSpace(row[col])
			if v == "" {
				continue
			}
			formats[dateFormat(v)] = true
		}
		if len(formats) > 1 {
			names := make([]string, 0, len(formats))
			for f := range formats {
				names = append(names, f)
			}
			sort.Strings(names)
			warnings = append(warnings,
				fmt.Sprintf("column %s mixes date formats: %s", col, strings.Join(names, ", ")))
		}
	}
	return warnings
}

// score computes the composite quality score: formula errors weigh double,
// the result is rounded and floored at 0. An empty sheet scores 100.
func score(rowCount, criticalCount, emptyCells, errorCells int) int {
	totalCells := rowCount * criticalCount
	if totalCells == 0 {
		return 100
	}
	s := math.Round(float64(totalCells-emptyCells-2*errorCells) / float64(totalCells) * 100)
	if s < 0 {
		return 0
	}
	return int(s)
}

func recommendations(incompleteRows, errorCells int) []Recommendation {
	var recs []Recommendation
	if incompleteRows > 0 {
		recs = append(recs, Recommendation{
			Priority: "high",
			Message:  fmt.Sprintf("%d rows are missing critical fields", incompleteRows),
			Action:   "complete the missing values before relying on downstream answers",
		})
	}
	if errorCells > 0 {
		recs = append(recs, Recommendation{
			Priority: "critical",
			Message:  fmt.Sprintf("%d formula errors found in the source spreadsheet", errorCells),
			Action:   "open the workbook, repair the broken formulas, and re-upload",
		})
	}
	return recs
}
