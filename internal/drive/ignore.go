package drive

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
)

// ignoreRules is one parsed .gitignore. Paths are matched relative to the
// directory holding the file.
type ignoreRules struct {
	patterns []ignorePattern
}

type ignorePattern struct {
	regex   *regexp.Regexp
	negated bool
	dirOnly bool
}

func loadIgnoreRules(path string) (*ignoreRules, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return parseIgnoreRules(f)
}

func parseIgnoreRules(r io.Reader) (*ignoreRules, error) {
	rules := &ignoreRules{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var p ignorePattern
		if strings.HasPrefix(line, "!") {
			p.negated = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if line == "" {
			continue
		}
		p.regex = regexp.MustCompile(globToRegex(line))
		rules.patterns = append(rules.patterns, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// globToRegex translates a gitignore glob. A leading slash anchors the
// pattern to the rules' directory; otherwise it matches at any depth.
func globToRegex(glob string) string {
	pattern := regexp.QuoteMeta(glob)
	pattern = strings.ReplaceAll(pattern, `\*\*`, ".*")
	pattern = strings.ReplaceAll(pattern, `\*`, "[^/]*")
	pattern = strings.ReplaceAll(pattern, `\?`, "[^/]")

	if strings.HasPrefix(pattern, "/") {
		pattern = "^" + strings.TrimPrefix(pattern, "/")
	} else {
		pattern = "(^|/)" + pattern
	}
	return pattern + "($|/)"
}

// ignored applies the patterns in order; the last match wins.
func (r *ignoreRules) ignored(relPath string, isDir bool) bool {
	if r == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	ignored := false
	for _, p := range r.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if p.regex.MatchString(relPath) {
			ignored = !p.negated
		}
	}
	return ignored
}
