package mapping

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	phoneAllowed = regexp.MustCompile(`[0-9+\-() ]`)
	digitsOnly   = regexp.MustCompile(`[0-9]+`)

	// Hosts we accept for profile/social links.
	profileHostPattern = regexp.MustCompile(`(?i)^(www\.)?(linkedin\.com|xing\.com|github\.com|twitter\.com|x\.com)$`)
)

// NormalizeText trims surrounding whitespace.
func NormalizeText(raw string) (interface{}, bool) {
	return strings.TrimSpace(raw), true
}

// NormalizeEmail trims and lowercases. An address without '@' is unusable.
func NormalizeEmail(raw string) (interface{}, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", true
	}
	if !strings.Contains(email, "@") {
		return nil, false
	}
	return email, true
}

// NormalizePhone keeps digits, '+', '-', spaces and parentheses.
func NormalizePhone(raw string) (interface{}, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if phoneAllowed.MatchString(string(r)) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String()), true
}

// NormalizeProfileURL canonicalizes a profile link to https, strips query
// and fragment, and validates the host against the known profile hosts.
// Anything else is unusable and must not be stored verbatim.
func NormalizeProfileURL(raw string) (interface{}, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", true
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, false
	}

	u.Scheme = "https"
	u.RawQuery = ""
	u.Fragment = ""

	if !profileHostPattern.MatchString(u.Host) {
		return nil, false
	}

	return strings.TrimSuffix(u.String(), "/"), true
}

// NormalizeInt strips non-digit characters and parses the remainder.
// Values with no digits at all are unusable.
func NormalizeInt(raw string) (interface{}, bool) {
	digits := strings.Join(digitsOnly.FindAllString(raw, -1), "")
	if digits == "" {
		return nil, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil, false
	}
	return n, true
}
