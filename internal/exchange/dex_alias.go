package exchange

import (
	"strings"
	"unicode"
)

// sanitizeDexAlias keeps ASCII letters and digits, upper-cased.
func sanitizeDexAlias(alias string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r > unicode.MaxASCII:
			return -1
		case unicode.IsLetter(r):
			return unicode.ToUpper(r)
		case unicode.IsDigit(r):
			return r
		}
		return -1
	}, strings.TrimSpace(alias))
}

// composeDexAlias builds a symbol name from the alias and the last six
// characters of the pair address.
func composeDexAlias(base, address string) string {
	base = sanitizeDexAlias(base)
	suffix := sanitizeDexAlias(address)
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	switch {
	case base == "" && suffix == "":
		return "PAIR"
	case base == "":
		return "PAIR_" + suffix
	case suffix == "":
		return base
	}
	return base + "_" + suffix
}
