package audit

import (
	"encoding/json"
	"regexp"
)

// AnalyzerResult is the analyzer's one-shot JSON output, or an error/default shape.
type AnalyzerResult = json.RawMessage

// Severity enum
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Vulnerability is one entry of the report produced by the completion service.
type Vulnerability struct {
	ID             int      `json:"id"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Line           int      `json:"line"`
	Description    string   `json:"description"`
	Impact         string   `json:"impact"`
	Recommendation string   `json:"recommendation"`
}

// Report is the typed view of the audit document.
type Report struct {
	RiskScore       int             `json:"riskScore"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Suggestions     []string        `json:"suggestions"`
	FixedCode       string          `json:"fixedCode"`
}

// DecodeReport decodes the audit document leniently. Models sometimes send
// floats or strings where ints are expected, so fields that fail to decode
// are left zero instead of failing the whole document.
func DecodeReport(raw json.RawMessage) Report {
	var doc struct {
		RiskScore       any               `json:"riskScore"`
		Vulnerabilities []json.RawMessage `json:"vulnerabilities"`
		Suggestions     []any             `json:"suggestions"`
		FixedCode       any               `json:"fixedCode"`
	}
	var r Report
	if err := json.Unmarshal(raw, &doc); err != nil {
		return r
	}
	r.RiskScore = asInt(doc.RiskScore)
	if s, ok := doc.FixedCode.(string); ok {
		r.FixedCode = s
	}
	for _, s := range doc.Suggestions {
		if str, ok := s.(string); ok {
			r.Suggestions = append(r.Suggestions, str)
		}
	}
	for _, item := range doc.Vulnerabilities {
		var v struct {
			ID             any    `json:"id"`
			Severity       string `json:"severity"`
			Title          string `json:"title"`
			Line           any    `json:"line"`
			Description    string `json:"description"`
			Impact         string `json:"impact"`
			Recommendation string `json:"recommendation"`
		}
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		r.Vulnerabilities = append(r.Vulnerabilities, Vulnerability{
			ID:             asInt(v.ID),
			Severity:       Severity(v.Severity),
			Title:          v.Title,
			Line:           asInt(v.Line),
			Description:    v.Description,
			Impact:         v.Impact,
			Recommendation: v.Recommendation,
		})
	}
	return r
}

// Counts tallies the report's vulnerabilities by severity.
func (r Report) Counts() SeverityCounts {
	var c SeverityCounts
	for _, v := range r.Vulnerabilities {
		c.add(string(v.Severity))
	}
	return c
}

func asInt(v any) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}

// Result is the combined response of one audit.
type Result struct {
	Success    bool            `json:"success"`
	Audit      json.RawMessage `json:"audit"`
	SlitherRaw AnalyzerResult  `json:"slitherRaw"`
}

// CompiledArtifact is what the compile endpoint returns.
type CompiledArtifact struct {
	Success  bool   `json:"success"`
	Bytecode string `json:"bytecode"`
	ABI      []any  `json:"abi"`
}

var contractRe = regexp.MustCompile(`contract\s+(\w+)`)

// ContractName returns the first declared contract name, or "Contract".
func ContractName(code string) string {
	if m := contractRe.FindStringSubmatch(code); len(m) > 1 {
		return m[1]
	}
	return "Contract"
}
