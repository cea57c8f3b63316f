package conversation

import (
	"net/mail"
	"strings"

	"golang.org/x/net/idna"

	"shopbot/internal/model"
)

// ValidateEmail checks a bare address such as "a@b.com" and returns it in
// normalized form: trimmed, with the domain lower-cased and IDNA-mapped.
// The local part is kept as typed. Display names, angle brackets and
// single-label domains are rejected.
func ValidateEmail(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", model.NewValidationError("email", "empty")
	}

	addr, err := mail.ParseAddress(text)
	if err != nil || addr.Name != "" || addr.Address != text {
		return "", model.NewValidationError("email", "not an email address")
	}

	at := strings.LastIndex(addr.Address, "@")
	local, domain := addr.Address[:at], addr.Address[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", model.NewValidationError("email", "domain must be fully qualified")
	}

	// Lookup rejects labels a mail server would never resolve, such as
	// leading hyphens or underscores.
	if _, err := idna.Lookup.ToASCII(domain); err != nil {
		return "", model.NewValidationError("email", "invalid domain")
	}
	normalized, err := idna.Lookup.ToUnicode(domain)
	if err != nil {
		return "", model.NewValidationError("email", "invalid domain")
	}
	return local + "@" + normalized, nil
}
