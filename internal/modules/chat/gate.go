// README: Moderation gate: exact preset match and contact-leak patterns.
package chat

import (
	"regexp"
	"strings"
)

var contactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{10,}`),
	regexp.MustCompile(`\+\d{7,}`),
	regexp.MustCompile(`(?i)whatsapp|wa\.me`),
}

// Gate decides whether a message may be delivered. It has no state beyond
// the preset lists.
type Gate struct {
	allowed map[Side]map[string]bool
}

func NewGate() *Gate {
	g := &Gate{allowed: make(map[Side]map[string]bool)}
	for _, side := range []Side{SideDriver, SidePassenger} {
		set := make(map[string]bool)
		for _, p := range Presets(side) {
			set[p] = true
		}
		g.allowed[side] = set
	}
	return g
}

// Check returns the trimmed text when it may be sent by side.
func (g *Gate) Check(side Side, text string) (string, error) {
	text = strings.TrimSpace(text)
	for _, re := range contactPatterns {
		if re.MatchString(text) {
			return "", ErrContactInfo
		}
	}
	if !g.allowed[side][text] {
		return "", ErrNotPreset.WithField("text", "must be one of the preset messages")
	}
	return text, nil
}
