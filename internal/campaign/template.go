package campaign

import (
	"regexp"
	"strings"
)

// placeholder pattern for template substitution: {field_name}
var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Render substitutes every {field} placeholder in template with the
// matching record value. The field name matches case-insensitively;
// placeholders with no matching field are left verbatim.
func Render(template string, fields map[string]string) string {
	if template == "" {
		return template
	}

	lower := make(map[string]string, len(fields))
	for k, v := range fields {
		lower[strings.ToLower(k)] = v
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.ToLower(match[1 : len(match)-1])
		if value, ok := lower[name]; ok {
			return value
		}
		// Keep original if field not found
		return match
	})
}
