package submission

import "strings"

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// Sanitize trims a textual value and strips angle brackets so it cannot open
// markup in the composed email. Any other value is returned unchanged.
func Sanitize(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return angleBrackets.Replace(strings.TrimSpace(s))
}

// SanitizeFields returns a copy of f with Sanitize applied to every value.
func SanitizeFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = Sanitize(v)
	}
	return out
}
