package rag

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/models"
)

// ParseIdeas decodes the model's reply as a JSON array of ideas. When the
// reply is not clean JSON it retries on the text between the first '[' and
// the last ']', then gives up with ErrMalformedModelOutput.
func ParseIdeas(raw string) ([]models.Idea, error) {
	var ideas []models.Idea
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &ideas); err == nil && ideas != nil {
		return ideas, nil
	}

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON array in model reply", core.ErrMalformedModelOutput)
	}
	ideas = nil
	if err := json.Unmarshal([]byte(raw[start:end+1]), &ideas); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedModelOutput, err)
	}
	if ideas == nil {
		ideas = []models.Idea{}
	}
	return ideas, nil
}
