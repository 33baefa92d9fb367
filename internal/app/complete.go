package app

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"sshpilot/internal/sshc"
)

// completeLocalPath extends a partial local path by one completion step:
// a unique match fills in fully, several matches fill their longest common
// prefix, a directory gains its trailing slash. The input comes back
// unchanged when nothing matches. Tildes are expanded up front, so the
// completed value is always a concrete path.
func completeLocalPath(input string) string {
	if input == "" {
		return "./"
	}
	expanded := sshc.ExpandTilde(input)

	if info, err := os.Stat(expanded); err == nil {
		if info.IsDir() && !strings.HasSuffix(expanded, "/") {
			return expanded + "/"
		}
		return expanded
	}

	dir, prefix := filepath.Split(expanded)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return input
	}

	var matches []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}
		full := filepath.Join(dir, name)
		if e.IsDir() {
			full += "/"
		}
		matches = append(matches, full)
	}

	switch len(matches) {
	case 0:
		return input
	case 1:
		return matches[0]
	default:
		if common := commonPrefix(matches); len(common) > len(expanded) {
			return common
		}
		return matches[0]
	}
}

// commonPrefix returns the longest prefix shared by every string, cut at a
// rune boundary.
func commonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			_, size := utf8.DecodeLastRuneInString(prefix)
			prefix = prefix[:len(prefix)-size]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}
