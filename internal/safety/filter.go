package safety

import "strings"

// Filter statically rejects source code that imports forbidden packages
// The check is purely textual: it scans import declarations and compares
// each path byte-exact against the configured denylist. It is the first
// gate, not the last - the outer container provides real containment.
type Filter struct {
	blacklist map[string]struct{}
}

// NewFilter creates a filter for the given denylist
// Time Complexity: O(n) where n is denylist size
// Space Complexity: O(n) for the lookup set
func NewFilter(blacklist []string) *Filter {
	set := make(map[string]struct{}, len(blacklist))
	for _, name := range blacklist {
		set[name] = struct{}{}
	}
	return &Filter{blacklist: set}
}

// ContainsBlacklistedImport reports whether the source imports a forbidden
// package, returning the first offending path in source order.
// Both declaration forms are recognised: the block form (import ( ... ))
// split by line, and the single form (import "...").
// Each candidate line is normalised by stripping inline comments,
// surrounding whitespace and surrounding double quotes before comparison.
// The function is pure: repeated calls on the same source return the
// same result.
// Time Complexity: O(n) where n is source length
// Space Complexity: O(n) for line splitting
func (f *Filter) ContainsBlacklistedImport(source string) (bool, string) {
	inBlock := false

	for _, raw := range strings.Split(source, "\n") {
		line := stripInlineComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if inBlock {
			if strings.HasPrefix(line, ")") {
				inBlock = false
				continue
			}
			if name, hit := f.match(line); hit {
				return true, name
			}
			continue
		}

		if !strings.HasPrefix(line, "import") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, "import"))
		if strings.HasPrefix(rest, "(") {
			inBlock = true
			// Entries may share the line with the opening parenthesis
			rest = strings.TrimSpace(strings.TrimPrefix(rest, "("))
			if rest == "" {
				continue
			}
			if strings.HasSuffix(rest, ")") {
				inBlock = false
				rest = strings.TrimSpace(strings.TrimSuffix(rest, ")"))
			}
			if name, hit := f.match(rest); hit {
				return true, name
			}
			continue
		}
		if name, hit := f.match(rest); hit {
			return true, name
		}
	}

	return false, ""
}

// match normalises one import entry and checks it against the denylist
func (f *Filter) match(entry string) (string, bool) {
	name := strings.TrimSpace(entry)
	name = strings.Trim(name, `"`)
	if _, ok := f.blacklist[name]; ok {
		return name, true
	}
	return "", false
}

// stripInlineComment removes trailing // comments from a line
func stripInlineComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		return line[:idx]
	}
	return line
}
