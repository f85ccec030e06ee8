package voice

import "strings"

// honorifics are stripped from the front of a full name before picking the
// token the kiosk greets someone by, so "Dr. Asif Khan" greets "Asif" and
// not "Dr.".
var honorifics = map[string]bool{
	"mr":       true,
	"mrs":      true,
	"ms":       true,
	"md":       true,
	"dr":       true,
	"allama":   true,
	"mohammad": true,
	"s.m":      true,
	"al":       true,
}

// firstMeaningfulName strips punctuation, splits on whitespace, and drops
// leading honorific tokens to find the name a greeting should use. A name
// made up entirely of honorifics (or empty) falls back to the original
// string unchanged.
func firstMeaningfulName(fullName string) string {
	cleaned := strings.NewReplacer(",", " ", ".", " ").Replace(fullName)
	tokens := strings.Fields(cleaned)
	for _, tok := range tokens {
		if !honorifics[strings.ToLower(tok)] {
			return tok
		}
	}
	return fullName
}

// GreetingPhrase builds the kiosk's spoken greeting for a recognized
// employee: an explicit NameOverrides entry wins outright, otherwise the
// first honorific-stripped name token is used.
func (l *Log) GreetingPhrase(name string) string {
	first := firstMeaningfulName(name)
	if override, ok := l.overrides[strings.ToLower(first)]; ok {
		return "Thank you, " + override + "."
	}
	return "Thank you, " + first + "."
}
