// Package skill defines the in-memory skill model shared by the loader,
// the search index, and the tool surface.
package skill

import (
	"fmt"
	"path"
	"strings"
)

// Scope classifies skill visibility.
type Scope string

const (
	// ScopeGlobal skills are visible to every caller.
	ScopeGlobal Scope = "global"

	// ScopeTenant skills are visible only to their owning tenant and only
	// when explicitly named in a request's allow-list.
	ScopeTenant Scope = "tenant"
)

// ParseScope maps a config/form value to a Scope. Empty defaults to global.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ScopeGlobal):
		return ScopeGlobal, nil
	case string(ScopeTenant):
		return ScopeTenant, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// DocClass classifies a skill document.
type DocClass string

const (
	// DocText documents are loaded inline as UTF-8.
	DocText DocClass = "text"

	// DocImage documents are recorded by size and resolved lazily.
	DocImage DocClass = "image"

	// DocBinary covers everything else; contents are never inlined.
	DocBinary DocClass = "binary-other"
)

// Document is one file inside a skill bundle.
type Document struct {
	// Path is the slash-separated path relative to the skill root.
	Path string

	// Class is the document classification.
	Class DocClass

	// Size is the file size in bytes.
	Size int64

	// Content holds the full text for DocText documents.
	Content string

	// Locator is the absolute filesystem path for lazily-resolved
	// image and binary documents. Empty for inline text documents.
	Locator string
}

// Skill is one indexed skill bundle. Immutable once published to the
// index; replacement happens by whole-value swap keyed on Name.
type Skill struct {
	// Name uniquely identifies the skill across the index.
	Name string

	// Description is the semantic key used for embedding.
	Description string

	// Source is the opaque origin identifier (repo URL + path, or local path).
	Source string

	// Scope controls visibility.
	Scope Scope

	// TenantID is the owning tenant; non-empty iff Scope == ScopeTenant.
	TenantID string

	// Documents are the bundle's files in deterministic walk order.
	Documents []Document

	// PrimaryDocument is the manifest body (front matter stripped).
	PrimaryDocument string

	// Metadata holds front-matter keys beyond name/description, passed
	// through opaquely.
	Metadata map[string]string
}

// Validate enforces the model invariants: scope/tenant coupling and
// document path uniqueness and containment.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("skill name is empty")
	}
	if s.Description == "" {
		return fmt.Errorf("skill %q has no description", s.Name)
	}

	switch s.Scope {
	case ScopeGlobal:
		if s.TenantID != "" {
			return fmt.Errorf("skill %q: global scope with tenant_id %q", s.Name, s.TenantID)
		}
	case ScopeTenant:
		if s.TenantID == "" {
			return fmt.Errorf("skill %q: tenant scope requires tenant_id", s.Name)
		}
	default:
		return fmt.Errorf("skill %q: unknown scope %q", s.Name, s.Scope)
	}

	seen := make(map[string]struct{}, len(s.Documents))
	for _, d := range s.Documents {
		if !SafeRelPath(d.Path) {
			return fmt.Errorf("skill %q: unsafe document path %q", s.Name, d.Path)
		}
		if _, dup := seen[d.Path]; dup {
			return fmt.Errorf("skill %q: duplicate document path %q", s.Name, d.Path)
		}
		seen[d.Path] = struct{}{}
	}

	return nil
}

// Document returns the document at the given relative path, if present.
func (s *Skill) Document(relPath string) (Document, bool) {
	for _, d := range s.Documents {
		if d.Path == relPath {
			return d, true
		}
	}
	return Document{}, false
}

// VisibleTo reports whether the skill may surface for a query made with
// the given tenant and allow-list. Global skills are always visible;
// tenant skills require a matching tenant AND explicit listing.
func (s *Skill) VisibleTo(tenantID string, allowed map[string]struct{}) bool {
	if s.Scope == ScopeGlobal {
		return true
	}
	if s.TenantID != tenantID {
		return false
	}
	_, ok := allowed[s.Name]
	return ok
}

// SafeRelPath reports whether p is a clean, relative, slash-separated
// path that cannot escape the skill root.
func SafeRelPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	clean := path.Clean(p)
	if clean != p {
		return false
	}
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

// Snapshot is the read-only view of a skill exposed by list_skills and
// search results.
type Snapshot struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Source        string `json:"source"`
	Scope         Scope  `json:"scope"`
	DocumentCount int    `json:"document_count"`
}

// Snapshot builds the tool-facing view of the skill.
func (s *Skill) Snapshot() Snapshot {
	return Snapshot{
		Name:          s.Name,
		Description:   s.Description,
		Source:        s.Source,
		Scope:         s.Scope,
		DocumentCount: len(s.Documents),
	}
}

// DocumentPaths returns the relative paths of all documents in order.
func (s *Skill) DocumentPaths() []string {
	paths := make([]string, len(s.Documents))
	for i, d := range s.Documents {
		paths[i] = d.Path
	}
	return paths
}
