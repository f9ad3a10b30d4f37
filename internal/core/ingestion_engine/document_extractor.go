package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/Cadence/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct{}

func NewDocconvExtractor() *DocconvExtractor {
	return &DocconvExtractor{}
}

// ExtractText picks a parser by substring match on fileType. Unknown types
// are decoded as UTF-8 with invalid sequences replaced.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, fileType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var (
		text string
		err  error
	)
	switch kind := strings.ToLower(fileType); {
	case strings.Contains(kind, "pdf"):
		text, _, err = docconv.ConvertPDF(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("pdf extraction: %w", err)
		}
	case strings.Contains(kind, "docx"), strings.Contains(kind, "wordprocessingml"):
		text, _, err = docconv.ConvertDocx(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("docx extraction: %w", err)
		}
	default:
		text = strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return strings.TrimSpace(text), nil
}
