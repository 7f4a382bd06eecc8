package mcp

import (
	"fmt"
	"strings"

	"github.com/skillscout/skillscout/internal/index"
	"github.com/skillscout/skillscout/internal/skill"
)

// FormatSearchResults formats find_helpful_skills results as markdown.
func FormatSearchResults(query string, results []index.Result, listDocuments bool) string {
	if len(results) == 0 {
		return fmt.Sprintf("No skills found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Skills for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d skill", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n", i+1, r.Skill.Name, r.Score)
		fmt.Fprintf(&sb, "%s\n", r.Skill.Description)
		if listDocuments && len(r.Skill.Documents) > 0 {
			sb.WriteString("\nDocuments:\n")
			for _, d := range r.Skill.Documents {
				fmt.Fprintf(&sb, "- `%s` (%s)\n", d.Path, d.Class)
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatDocuments concatenates matched text documents as markdown, with a
// header naming each path. Image and binary documents are listed but
// never inlined.
func FormatDocuments(skillName string, docs []skill.Document) string {
	var sb strings.Builder

	var inline, listed []skill.Document
	for _, d := range docs {
		if d.Class == skill.DocText {
			inline = append(inline, d)
		} else {
			listed = append(listed, d)
		}
	}

	for i, d := range inline {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&sb, "## %s: %s\n\n", skillName, d.Path)
		sb.WriteString(d.Content)
		if !strings.HasSuffix(d.Content, "\n") {
			sb.WriteString("\n")
		}
	}

	if len(listed) > 0 {
		if len(inline) > 0 {
			sb.WriteString("\n---\n\n")
		}
		sb.WriteString("Matched documents without inline content:\n")
		for _, d := range listed {
			fmt.Fprintf(&sb, "- `%s` (%s, %d bytes)\n", d.Path, d.Class, d.Size)
		}
	}

	return sb.String()
}

// FormatSkillList formats the list_skills inventory as markdown.
func FormatSkillList(snaps []skill.Snapshot, loading bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Indexed Skills (%d)\n\n", len(snaps))
	if loading {
		sb.WriteString("Loading is still in progress; this list may grow.\n\n")
	}
	if len(snaps) == 0 {
		sb.WriteString("No skills indexed yet.\n")
		return sb.String()
	}
	for _, s := range snaps {
		fmt.Fprintf(&sb, "- **%s** (%s, %d documents): %s\n",
			s.Name, s.Scope, s.DocumentCount, s.Description)
	}
	return sb.String()
}
