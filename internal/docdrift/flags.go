package docdrift

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// flagPattern matches long-form flag literals inside source text.
var flagPattern = regexp.MustCompile(`--[a-z][a-z0-9]*(?:-[a-z0-9]+)*`)

// ExtractFlags enumerates the long flags declared in the project root's
// public source files. This is the checker's default flag input when the
// caller has no authoritative flag list.
func ExtractFlags(repoRoot string) ([]string, error) {
	c := &Checker{RepoRoot: repoRoot}
	files, err := c.publicFiles()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(repoRoot, name))
		if err != nil {
			continue
		}
		for _, match := range flagPattern.FindAllString(string(data), -1) {
			seen[match] = true
		}
	}

	flags := make([]string, 0, len(seen))
	for f := range seen {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return flags, nil
}
