package core

import (
	"context"
)

// DocumentExtractor converts a downloaded blob into plain UTF-8 text.
// The fileType hint (MIME type or extension) selects the parser.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, fileType string) (string, error)
}
