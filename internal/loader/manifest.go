package loader

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillscout/skillscout/internal/errors"
)

// Manifest is the parsed SKILL.md front matter plus the markdown body.
type Manifest struct {
	Name        string
	Description string
	// Metadata holds front-matter keys beyond name/description,
	// passed through opaquely.
	Metadata map[string]string
	// Body is the markdown after the front-matter block.
	Body string
}

// ParseManifest extracts the leading YAML front-matter block delimited by
// "---" lines. A missing block or missing/empty name or description
// yields a manifest-malformed error.
func ParseManifest(data []byte) (*Manifest, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	if !strings.HasPrefix(text, "---\n") {
		return nil, errors.New(errors.CodeManifestMalformed, "missing front-matter block")
	}

	// The closing delimiter must be a whole "---" line: a line that
	// merely starts with dashes belongs to the front matter.
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		if !strings.HasSuffix(rest, "\n---") {
			return nil, errors.New(errors.CodeManifestMalformed, "unterminated front-matter block")
		}
		end = len(rest) - len("\n---")
	}

	block := rest[:end]
	body := strings.TrimPrefix(rest[end:], "\n---")
	body = strings.TrimPrefix(body, "\n")

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return nil, errors.Wrap(errors.CodeManifestMalformed,
			fmt.Errorf("front matter: %w", err))
	}

	m := &Manifest{Body: body, Metadata: make(map[string]string)}
	for k, v := range raw {
		val := strings.TrimSpace(fmt.Sprintf("%v", v))
		switch k {
		case "name":
			m.Name = val
		case "description":
			m.Description = val
		default:
			m.Metadata[k] = val
		}
	}

	if m.Name == "" {
		return nil, errors.New(errors.CodeManifestMalformed, "front matter has no name")
	}
	if m.Description == "" {
		return nil, errors.New(errors.CodeManifestMalformed, "front matter has no description")
	}

	return m, nil
}
