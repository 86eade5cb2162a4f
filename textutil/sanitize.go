package textutil

import "strings"

var scriptSanitizer = strings.NewReplacer(
	"‘", "'", // curly single quotes
	"’", "'",
	"“", `"`, // curly double quotes
	"”", `"`,
	"–", "-", // en dash
	"—", "-", // em dash
	"…", "...", // ellipsis
	" ", " ", // non-breaking space
)

var scriptEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\t", " ",
)

// SanitizeScript normalizes typographic characters to plain ASCII and
// escapes backslashes, double quotes and newlines so the text can be
// embedded in the downstream effect pipeline. Newlines become the literal
// two-character \n sequence.
func SanitizeScript(text string) string {
	return strings.TrimSpace(scriptEscaper.Replace(scriptSanitizer.Replace(text)))
}

// FirstParagraph returns the first paragraph of a (possibly sanitized)
// script, used as the seed for the upload description.
func FirstParagraph(text string) string {
	plain := strings.ReplaceAll(text, `\n`, "\n")
	plain = strings.TrimSpace(plain)
	if i := strings.Index(plain, "\n\n"); i >= 0 {
		plain = plain[:i]
	}
	return strings.TrimSpace(strings.ReplaceAll(plain, "\n", " "))
}
