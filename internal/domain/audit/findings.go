package audit

import (
	"encoding/json"
	"strings"
)

// SeverityCounts value object
type SeverityCounts struct {
	Critical      int `json:"critical"`
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
	Informational int `json:"informational"`
	Total         int `json:"total"`
}

func (c *SeverityCounts) add(sev string) {
	switch strings.ToLower(sev) {
	case "critical":
		c.Critical++
	case "high":
		c.High++
	case "medium":
		c.Medium++
	case "low":
		c.Low++
	case "informational", "info", "optimization":
		c.Informational++
	}
	c.Total++
}

// Finding is one detector hit reported by Slither.
type Finding struct {
	Check       string `json:"check"`
	Impact      string `json:"impact"`
	Confidence  string `json:"confidence"`
	Description string `json:"description"`
	Line        int    `json:"line,omitempty"`
}

// ParseFindings extracts detector results from Slither's --json output.
// It is best effort: error and default shapes yield no findings.
func ParseFindings(raw AnalyzerResult) []Finding {
	var doc struct {
		Results struct {
			Detectors []struct {
				Check       string `json:"check"`
				Impact      string `json:"impact"`
				Confidence  string `json:"confidence"`
				Description string `json:"description"`
				Elements    []struct {
					SourceMapping struct {
						Lines []int `json:"lines"`
					} `json:"source_mapping"`
				} `json:"elements"`
			} `json:"detectors"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	out := make([]Finding, 0, len(doc.Results.Detectors))
	for _, d := range doc.Results.Detectors {
		f := Finding{
			Check:       d.Check,
			Impact:      d.Impact,
			Confidence:  d.Confidence,
			Description: strings.TrimSpace(d.Description),
		}
		for _, el := range d.Elements {
			if len(el.SourceMapping.Lines) > 0 {
				f.Line = el.SourceMapping.Lines[0]
				break
			}
		}
		out = append(out, f)
	}
	return out
}

// CountSeverities folds findings by Slither impact.
func CountSeverities(findings []Finding) SeverityCounts {
	var c SeverityCounts
	for _, f := range findings {
		c.add(f.Impact)
	}
	return c
}

// AnalyzerError reports the message of an {"error": ...} result.
func AnalyzerError(raw AnalyzerResult) (string, bool) {
	var doc struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Error == nil {
		return "", false
	}
	return *doc.Error, true
}

// AnalysisTimeout is the error message of a run that hit its deadline.
const AnalysisTimeout = "Analysis timeout"

// ErrorResult builds the {"error": msg} shape.
func ErrorResult(msg string) AnalyzerResult {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

// EmptyResult is returned when the analyzer printed nothing usable.
func EmptyResult() AnalyzerResult {
	return AnalyzerResult(`{"success":{"detectors":[]}}`)
}
