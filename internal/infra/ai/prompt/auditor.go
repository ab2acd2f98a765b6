package prompt

import (
	"bytes"
	"encoding/json"
	"strings"
)

// GetSystemPrompt fixes the assistant persona and the JSON-only reply rule.
func GetSystemPrompt() string {
	return "You are a smart contract security expert. Always respond with valid JSON only."
}

// ResponseSchema is the document the model is told to return.
const ResponseSchema = `{
  "riskScore": 0-100,
  "vulnerabilities": [
    {
      "id": 1,
      "severity": "critical|high|medium|low",
      "title": "vulnerability name",
      "line": line_number,
      "description": "detailed explanation",
      "impact": "potential impact",
      "recommendation": "how to fix"
    }
  ],
  "suggestions": [
    "improvement suggestion 1",
    "improvement suggestion 2"
  ],
  "fixedCode": "complete fixed version of the contract"
}`

const checklist = `Consider:
1. Reentrancy vulnerabilities
2. Integer overflow/underflow
3. Access control issues
4. Unchecked external calls
5. Gas optimization
6. Best practices compliance`

// GetUserPrompt embeds the contract source and the analyzer output.
// Pure function: same input, same prompt.
func GetUserPrompt(code string, analyzerResult []byte) string {
	var b strings.Builder
	b.WriteString("You are an expert smart contract security auditor. Analyze this Solidity contract and provide a comprehensive security audit.\n\n")
	b.WriteString("Contract Code:\n```solidity\n")
	b.WriteString(code)
	b.WriteString("\n```\n\n")
	b.WriteString("Slither Analysis Results:\n")
	b.WriteString(prettyJSON(analyzerResult))
	b.WriteString("\n\n")
	b.WriteString("Provide your response ONLY as valid JSON in this exact format (no markdown, no extra text):\n")
	b.WriteString(ResponseSchema)
	b.WriteString("\n\n")
	b.WriteString(checklist)
	b.WriteString("\n\nReturn ONLY the JSON object, nothing else.")
	return b.String()
}

// prettyJSON indents with two spaces; anything that is not JSON goes in verbatim.
func prettyJSON(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
