package utils

import (
	"regexp"
	"strings"
)

var versionPatterns = map[string][]*regexp.Regexp{
	"mysql": {
		regexp.MustCompile(`(\d+\.\d+\.\d+)`),
		regexp.MustCompile(`(\d+\.\d+)`),
	},
	"postgresql": {
		regexp.MustCompile(`PostgreSQL\s+(\d+\.\d+)`),
		regexp.MustCompile(`PostgreSQL\s+(\d+)`),
	},
	"sqlserver": {
		regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+)`),
	},
	"oracle": {
		regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+\.\d+)`),
		regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+)`),
	},
}

// UnknownVersion is the main version stored when no pattern matches.
const UnknownVersion = "unknown"

// ParseDatabaseVersion extracts the main (major.minor) and detailed versions
// from a raw version probe result.
func ParseDatabaseVersion(dbType, raw string) (main, detailed string) {
	raw = strings.TrimSpace(raw)
	for _, re := range versionPatterns[dbType] {
		m := re.FindStringSubmatch(raw)
		if len(m) < 2 {
			continue
		}
		detailed = m[1]
		parts := strings.Split(detailed, ".")
		if len(parts) >= 2 {
			main = parts[0] + "." + parts[1]
		} else {
			main = parts[0] + ".0"
		}
		return main, detailed
	}
	if len(raw) > 50 {
		raw = raw[:50]
	}
	return UnknownVersion, raw
}
