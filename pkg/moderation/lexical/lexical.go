package lexical

import (
	"context"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/CityPulse/PulseGuard/pkg/moderation"
)

const StageName = "lexical"

const blockedMessage = "Your message contains language that isn't allowed and can't be posted."

// Seed wordlist for the synchronous filter. Newly discovered abuse
// terms go into the dynamic blocklist, not here; this list only covers
// terms that must never reach a paid API.
var bannedTerms = []string{
	"fuck",
	"motherfucker",
	"shit",
	"dipshit",
	"bitch",
	"cunt",
	"asshole",
	"jackass",
	"bastard",
	"dickhead",
	"prick",
	"twat",
	"wanker",
	"whore",
	"slut",
	"cocksucker",
	"douchebag",
	"retard",
	"kys",
	"kill yourself",
}

// Common character substitutions used to dodge naive filters.
var leetRunes = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'8': 'b',
	'@': 'a',
	'$': 's',
	'!': 'i',
	'+': 't',
}

var (
	bannedExact    map[string]struct{}
	bannedSqueezed []string
)

func init() {
	bannedExact = make(map[string]struct{}, len(bannedTerms))
	for _, term := range bannedTerms {
		bannedExact[term] = struct{}{}
		// Short terms are excluded from the squeezed substring scan
		// to keep false positives down.
		squeezed := squeeze(term)
		if len(squeezed) >= 4 {
			bannedSqueezed = append(bannedSqueezed, squeezed)
		}
	}
}

// Filter is the synchronous, zero-latency first stage. It is pure and
// performs no I/O.
type Filter struct {
	logger *logrus.Logger
}

func NewFilter(logger *logrus.Logger) *Filter {
	return &Filter{logger: logger}
}

func (f *Filter) Name() string {
	return StageName
}

func (f *Filter) Blocking() bool {
	return false
}

func (f *Filter) Evaluate(_ context.Context, content string) moderation.Outcome {
	if ContainsBannedTerm(content) {
		return moderation.Outcome{
			Blocked: true,
			Reason:  blockedMessage,
		}
	}
	return moderation.Outcome{}
}

// ContainsBannedTerm reports whether the text matches the fixed
// wordlist after normalizing case, leetspeak substitutions, and
// spacing between letters.
func ContainsBannedTerm(text string) bool {
	norm := normalize(text)

	for _, token := range strings.FieldsFunc(norm, isNotLetter) {
		if _, ok := bannedExact[token]; ok {
			return true
		}
	}

	// "f u c k" and "fu-ck" survive tokenization; squeeze out the
	// separators and scan for the longer terms.
	squeezed := squeeze(norm)
	for _, term := range bannedSqueezed {
		if strings.Contains(squeezed, term) {
			return true
		}
	}

	return false
}

func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if sub, ok := leetRunes[r]; ok {
			r = sub
		}
		b.WriteRune(r)
	}
	return b.String()
}

func squeeze(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isNotLetter(r rune) bool {
	return !unicode.IsLetter(r)
}
