package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// CandidateText flattens a generateContent response body to a single text
// value. It accepts the known response shapes (a top-level text property,
// or candidate content parts) so shape checks never leak past the adapter
// boundary.
func CandidateText(raw []byte) (string, error) {
	var resp struct {
		Text       string `json:"text"`
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if resp.Text != "" {
		return resp.Text, nil
	}

	var sb strings.Builder
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no candidate text", ErrInvalidResponse)
	}
	return sb.String(), nil
}

// ParseResult parses model output text into a Result, stripping any
// markdown code-fence wrapping first and validating the decoded document
// against the schema contract. Any parse or validation failure is a
// capability failure, never a crash.
func ParseResult(content string, schema *Schema) (*Result, error) {
	content = strings.TrimSpace(content)

	payload := content
	if matches := jsonBlockRegex.FindStringSubmatch(content); len(matches) >= 2 {
		payload = strings.TrimSpace(matches[1])
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if err := schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &result, nil
}
