package bank

import (
	"strings"
	"unicode"
)

// Unknown is returned when no bank can be identified.
const Unknown = "Unknown"

type fallbackBank struct {
	key, display string
}

// fallbackBanks are tried in this order after the configured profiles.
var fallbackBanks = []fallbackBank{
	{"AXIS", "Axis Bank"},
	{"HDFC", "HDFC Bank"},
	{"ICICI", "ICICI Bank"},
	{"SBI", "SBI"},
	{"KOTAK", "Kotak Mahindra Bank"},
	{"AMEX", "American Express"},
	{"CITI", "Citi Bank"},
}

// Identifier resolves bank keys from document text using the configured
// profiles, then a fixed table of issuer abbreviations.
type Identifier struct {
	cfg *Config
	// lowered tokens per configured bank, key first
	tokens [][]string
}

func NewIdentifier(cfg *Config) *Identifier {
	if cfg == nil {
		cfg = &Config{}
	}
	id := &Identifier{cfg: cfg, tokens: make([][]string, len(cfg.Banks))}
	for i, p := range cfg.Banks {
		toks := []string{strings.ToLower(p.Key)}
		for _, ident := range p.Identifiers {
			if ident = strings.ToLower(strings.TrimSpace(ident)); ident != "" {
				toks = append(toks, ident)
			}
		}
		id.tokens[i] = toks
	}
	return id
}

// Identify returns the key of the first bank whose key or identifiers occur
// in text, or Unknown.
func (id *Identifier) Identify(text string) string {
	if strings.TrimSpace(text) == "" {
		return Unknown
	}
	lower := strings.ToLower(text)
	for i, toks := range id.tokens {
		for _, tok := range toks {
			if strings.Contains(lower, tok) {
				return id.cfg.Banks[i].Key
			}
		}
	}
	for _, fb := range fallbackBanks {
		if strings.Contains(lower, strings.ToLower(fb.key)) {
			return fb.key
		}
	}
	return Unknown
}

// DisplayName maps a bank key to a human readable name.
func (id *Identifier) DisplayName(key string) string {
	if key == "" || key == Unknown {
		return Unknown
	}
	if p, ok := id.cfg.Profile(key); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	upper := strings.ToUpper(key)
	for _, fb := range fallbackBanks {
		if fb.key == upper {
			return fb.display
		}
	}
	return titleCase(strings.ReplaceAll(key, "_", " "))
}

// titleCase upper-cases the first letter of every letter run and lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}
