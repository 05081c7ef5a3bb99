// Package lineup parses pasted festival lineups into individual artist names.
package lineup

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"setlist/pkg/fuzzy"
)

var (
	separatorRegex  = regexp.MustCompile(`[,;|•·\t]+|\s+[-–—]\s+|\s+/\s+`)
	b2bRegex        = regexp.MustCompile(`(?i)\s+(?:b2b|b3b|vs\.?)\s+`)
	timeRegex       = regexp.MustCompile(`\(?\b\d{1,2}[:.h]\d{2}\b(?:\s*[-–]\s*\d{1,2}[:.h]\d{2})?\)?`)
	bracketRegex    = regexp.MustCompile(`\s*[\(\[](?i:live|dj set|hybrid set|a/v|av)[\)\]]`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	dayHeaders = map[string]bool{
		"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
		"friday": true, "saturday": true, "sunday": true,
		"day 1": true, "day 2": true, "day 3": true, "day 4": true,
	}
)

type Parser struct {
	// SplitCollaborations turns "A b2b B" into two artists.
	SplitCollaborations bool
}

func NewParser() *Parser {
	return &Parser{SplitCollaborations: true}
}

// Parse returns the artist names in order of first appearance, without
// case-insensitive repeats.
func (p *Parser) Parse(text string) []string {
	text = norm.NFKC.String(text)

	seen := make(map[string]bool)
	var names []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if p.isHeader(line) {
			continue
		}

		for _, candidate := range p.splitLine(line) {
			name := p.cleanName(candidate)
			if name == "" {
				continue
			}

			key := fuzzy.Key(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, name)
		}
	}

	return names
}

func (p *Parser) isHeader(line string) bool {
	if line == "" || strings.HasPrefix(line, "#") {
		return true
	}

	if strings.HasSuffix(line, ":") {
		return true
	}

	return dayHeaders[strings.ToLower(line)]
}

func (p *Parser) splitLine(line string) []string {
	parts := separatorRegex.Split(line, -1)
	if !p.SplitCollaborations {
		return parts
	}

	var out []string
	for _, part := range parts {
		out = append(out, b2bRegex.Split(part, -1)...)
	}
	return out
}

func (p *Parser) cleanName(name string) string {
	name = timeRegex.ReplaceAllString(name, "")
	name = bracketRegex.ReplaceAllString(name, "")
	name = strings.Trim(name, " *-–—")
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
