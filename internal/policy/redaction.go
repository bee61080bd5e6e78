// Package policy scrubs user-supplied text before it is persisted.
package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)

	// Mexican national identifiers. CURP is 18 characters with a sex
	// marker at position 11; RFC (persona física) is 13. Both are written
	// uppercase in practice, so matching is case-sensitive.
	curpPattern = regexp.MustCompile(`\b[A-Z]{4}\d{6}[HM][A-Z]{5}[A-Z0-9]\d\b`)
	rfcPattern  = regexp.MustCompile(`\b[A-Z]{4}\d{6}[A-Z0-9]{3}\b`)
)

// RedactPII masks common high-risk PII patterns before a message is persisted
// in the conversation log.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// CURP before RFC: an RFC is a strict prefix shape of a CURP.
	next = curpPattern.ReplaceAllString(out, "[REDACTED_CURP]")
	changed = changed || next != out
	out = next

	next = rfcPattern.ReplaceAllString(out, "[REDACTED_RFC]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}
