package stream

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFilenameLength = 120

// SafeFilename reduces a media title to printable ASCII that is safe inside
// a quoted Content-Disposition filename.
func SafeFilename(title string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool {
			return r == '"' || r == '\\' || r == '/' || unicode.IsControl(r)
		})),
		runes.Map(func(r rune) rune {
			if r > unicode.MaxASCII {
				return '_'
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, title)
	if err != nil {
		return "video"
	}

	out = strings.Join(strings.Fields(out), " ")
	out = strings.Trim(out, ". ")
	if len(out) > maxFilenameLength {
		out = strings.TrimSpace(out[:maxFilenameLength])
	}
	if out == "" {
		return "video"
	}
	return out
}
