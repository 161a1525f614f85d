package crawler

import (
	"strings"

	"go.uber.org/zap"
)

// ItemExtractor parses the raw multi-line text of a search-result entry into
// an ItemDescriptor.
//
// The positional convention is a contract with the target page's markup, not
// a heuristic: after discarding blank lines, the first line is the extension
// label, the second-to-last is the size, and the last is the title. Change
// it only when the site's rendering changes.
type ItemExtractor struct {
	logger *zap.Logger
}

// NewItemExtractor builds an extractor.
func NewItemExtractor(logger *zap.Logger) *ItemExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemExtractor{logger: logger}
}

// Parse extracts {title, extension, size} from the entry text. Malformed
// input yields the Unknown sentinel triple and a logged warning; the caller
// is expected to continue with the next item.
func (e *ItemExtractor) Parse(raw, detailURL string) ItemDescriptor {
	lines := nonBlankLines(raw)
	if len(lines) < 2 {
		e.logger.Warn("item text did not match the expected layout",
			zap.String("raw", raw))
		return ItemDescriptor{
			Title:     UnknownField,
			Extension: UnknownField,
			Size:      UnknownField,
			DetailURL: detailURL,
		}
	}
	return ItemDescriptor{
		Extension: lines[0],
		Size:      lines[len(lines)-2],
		Title:     lines[len(lines)-1],
		DetailURL: detailURL,
	}
}

func nonBlankLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
