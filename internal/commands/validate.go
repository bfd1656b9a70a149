package commands

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

const (
	maxAppNameLength = 64
	maxDomainLength  = 253
	maxLabelLength   = 63
)

// validateAppName accepts letters, digits, spaces and "-_." up to 64 runes.
// The name ends up in resolver override descriptions.
func validateAppName(app string) error {
	if app == "" {
		return fmt.Errorf("no app given")
	}
	if len([]rune(app)) > maxAppNameLength {
		return fmt.Errorf("app name must be at most %d characters", maxAppNameLength)
	}
	for _, r := range app {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune(" -_.", r) {
			return fmt.Errorf("app name contains invalid character %q", r)
		}
	}
	return nil
}

// validateDomain checks RFC 1123 host name syntax. IP literals are rejected.
func validateDomain(domain string) error {
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" || len(domain) > maxDomainLength {
		return fmt.Errorf("invalid domain name")
	}
	if net.ParseIP(domain) != nil {
		return fmt.Errorf("expected a domain name, got an IP address")
	}

	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > maxLabelLength {
			return fmt.Errorf("invalid domain name")
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("invalid domain name")
		}
		for _, r := range label {
			if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
				return fmt.Errorf("invalid domain name")
			}
		}
	}
	return nil
}
