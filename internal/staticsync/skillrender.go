package staticsync

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// SlugifySkillID lowercases id and replaces any run of characters other than
// a-z, 0-9 and '-' with a single hyphen, trimming leading/trailing hyphens.
// Hyphens already in id are kept, so adjacent hyphens are not collapsed.
func SlugifySkillID(id string) string {
	lower := strings.ToLower(id)
	slug := slugPattern.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// SkillDirName is the namespaced directory name a skill is written under,
// so Perlica-managed skills never collide with user-authored ones and can
// be identified for stale cleanup.
func SkillDirName(namespacePrefix, skillID string) string {
	return fmt.Sprintf("%s-%s", namespacePrefix, SlugifySkillID(skillID))
}

// RenderSkillMarkdown produces the frontmatter-style markdown file content
// for a skill.
func RenderSkillMarkdown(s Skill) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "name: %s\n", s.Name)
	fmt.Fprintf(&b, "description: %s\n", s.Description)
	b.WriteString("---\n\n")
	b.WriteString(s.SystemPrompt)
	b.WriteString("\n")
	return b.String()
}
