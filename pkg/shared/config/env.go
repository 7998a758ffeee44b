// Package config holds configuration helpers shared across keywrapper packages:
// environment expansion for config files and masking of credential values.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} or ${VAR:-default}
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// LookupFunc resolves an environment variable, like os.LookupEnv
type LookupFunc func(name string) (string, bool)

type envRef struct {
	name       string
	def        string
	hasDefault bool
}

func parseRef(match []string) envRef {
	return envRef{
		name:       match[1],
		def:        match[3],
		hasDefault: match[2] != "",
	}
}

// ExpandEnv replaces ${VAR} and ${VAR:-default} references using the process
// environment. An unset or empty variable becomes its default, or "".
func ExpandEnv(input string) string {
	return ExpandEnvWith(input, os.LookupEnv)
}

// ExpandEnvWith is ExpandEnv with a custom lookup
func ExpandEnvWith(input string, lookup LookupFunc) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		ref := parseRef(envVarPattern.FindStringSubmatch(match))
		if value, ok := lookup(ref.name); ok && value != "" {
			return value
		}
		return ref.def
	})
}

// ExpandEnvBytes is ExpandEnv for file contents
func ExpandEnvBytes(input []byte) []byte {
	return []byte(ExpandEnv(string(input)))
}

// ReferencedEnvVars returns the variable names referenced in input, in order
// of first appearance
func ReferencedEnvVars(input string) []string {
	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, match := range envVarPattern.FindAllStringSubmatch(input, -1) {
		ref := parseRef(match)
		if !seen[ref.name] {
			seen[ref.name] = true
			names = append(names, ref.name)
		}
	}
	return names
}

// MissingEnvVars returns referenced variables that are unset or empty and
// have no default
func MissingEnvVars(input string, lookup LookupFunc) []string {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	seen := make(map[string]bool)
	missing := make([]string, 0)
	for _, match := range envVarPattern.FindAllStringSubmatch(input, -1) {
		ref := parseRef(match)
		if ref.hasDefault || seen[ref.name] {
			continue
		}
		seen[ref.name] = true
		if value, ok := lookup(ref.name); !ok || value == "" {
			missing = append(missing, ref.name)
		}
	}
	return missing
}

// MaskSecret renders a credential for display: short values are fully
// hidden, longer ones keep a 4 character hint at each end.
func MaskSecret(value string) string {
	switch {
	case value == "":
		return "(empty)"
	case len(value) <= 12:
		return strings.Repeat("*", len(value))
	default:
		return value[:4] + strings.Repeat("*", 8) + value[len(value)-4:]
	}
}
