package utils

import "regexp"

var (
	emailAddressPattern = regexp.MustCompile(`[\w.\-]+@[\w.\-]+`)
	phoneNumberPattern  = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// Pseudonymize masks email addresses and phone numbers with placeholder
// tokens. Applied to thread transcripts before they leave the system for the
// generative backend.
func Pseudonymize(text string) string {
	if text == "" {
		return text
	}
	text = emailAddressPattern.ReplaceAllString(text, "[email]")
	text = phoneNumberPattern.ReplaceAllString(text, "[phone]")
	return text
}
