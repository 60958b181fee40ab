// Package shellguard implements the hard-blocked shell command pattern list.
// A match here overrides every policy disposition, including
// always_allow and an operator's --yes flag — there is no path around it
// short of editing this file.
package shellguard

import "regexp"

var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-[a-z]*r[a-z]*f[a-z]*\s+/(\s|$)`),
	regexp.MustCompile(`rm\s+-[a-z]*r[a-z]*f[a-z]*\s+/\*`),
	regexp.MustCompile(`rm\s+-[a-z]*r[a-z]*f[a-z]*\s+~(\s|/|$)`),
	regexp.MustCompile(`rm\s+-[a-z]*r[a-z]*f[a-z]*\s+\$home`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), // fork bomb
	regexp.MustCompile(`\bmkfs\.\w+`),
	regexp.MustCompile(`dd\s+if=/dev/zero\s+of=/dev/sd`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`chmod\s+-r\s+777\s+/(\s|$)`),
	regexp.MustCompile(`(curl|wget)\b[^|]*\|\s*(sudo\s+)?(sh|bash|zsh)\b`),
}

// normalize collapses whitespace and lowercases cmd so pattern matching is
// insensitive to spacing/case tricks that don't change what the shell runs.
func normalize(cmd string) string {
	out := make([]rune, 0, len(cmd))
	lastWasSpace := false
	for _, r := range cmd {
		if r == '\t' || r == '\n' || r == '\r' || r == ' ' {
			if !lastWasSpace {
				out = append(out, ' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, r)
	}
	return string(out)
}

// Blocked reports whether cmd matches a hard-blocked destructive pattern and,
// if so, which one (for logging/events), independent of any policy setting.
func Blocked(cmd string) (matched bool, pattern string) {
	n := normalize(cmd)
	for _, re := range blockedPatterns {
		if re.MatchString(n) {
			return true, re.String()
		}
	}
	return false, ""
}
