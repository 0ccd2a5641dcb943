package planner

import (
	"encoding/json"
	"strings"

	"github.com/opsmind/sshagent/internal/coreapi"
)

type rawStep struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	Priority           string `json:"priority"`
	EstimatedDuration  int    `json:"estimated_duration"`
	Dependencies       []int  `json:"dependencies"`
}

type rawPlan struct {
	Steps []rawStep `json:"steps"`
}

// extractFirstJSONObject returns the substring of s spanning the first
// balanced `{...}` object, tolerating chatty prose the model may wrap
// around the JSON payload.
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// parsePlan extracts and unmarshals the model's response into rawPlan.
func parsePlan(modelResponse string) (*rawPlan, error) {
	obj, ok := extractFirstJSONObject(modelResponse)
	if !ok {
		return nil, coreapi.NewFrameworkError("planner.parsePlan", "plan", coreapi.ErrPlanMalformed)
	}
	var plan rawPlan
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		return nil, coreapi.NewFrameworkError("planner.parsePlan", "plan", coreapi.ErrPlanMalformed)
	}
	return &plan, nil
}
