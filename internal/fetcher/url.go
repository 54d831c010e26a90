package fetcher

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidURL is returned by NormalizeURL for input that is not a usable
// http(s) URL.
var ErrInvalidURL = eris.New("fetcher: invalid url")

var (
	parenNote = regexp.MustCompile(`\s*\([^)]*\)`)
	urlShape  = regexp.MustCompile(`^https?://[\w\-.]+(:\d+)?(/[\w\-./?%&=]*)?$`)
)

// NormalizeURL cleans a URL as found in model output or a seed file:
// parenthetical annotations and surrounding whitespace are removed and a
// missing scheme becomes https. Fragments are dropped.
//
//	"example.gov (Circuit Court)"  -> "https://example.gov"
//	"  https://example.gov/path  " -> "https://example.gov/path"
func NormalizeURL(raw string) (string, error) {
	u := strings.TrimSpace(parenNote.ReplaceAllString(raw, ""))
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	if u == "" {
		return "", eris.Wrap(ErrInvalidURL, "empty")
	}

	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		i := strings.Index(u, "://")
		u = lower[:i] + u[i:]
	default:
		if strings.Contains(u, "://") {
			return "", eris.Wrapf(ErrInvalidURL, "unsupported scheme in %q", raw)
		}
		u = "https://" + u
	}

	if !urlShape.MatchString(u) {
		return "", eris.Wrapf(ErrInvalidURL, "%q", raw)
	}
	return u, nil
}
