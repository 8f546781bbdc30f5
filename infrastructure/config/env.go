package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/lode/domain/config"
)

// bracketPattern matches ${VAR}, ${VAR:-default}, and ${VAR:?message}.
var bracketPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*|:\?[^}]*)?\}`)

// envExpander expands environment variables in configuration text.
type envExpander struct {
	// strict fails on any referenced variable that is not set.
	strict bool
	// missing collects unset variables seen during expansion.
	missing []string
}

// Expand substitutes ${VAR}, ${VAR:-default}, and ${VAR:?message}
// references with environment values.
func (e *envExpander) Expand(input string) (string, error) {
	e.missing = nil

	result := bracketPattern.ReplaceAllStringFunc(input, e.replace)

	if len(e.missing) > 0 {
		return "", fmt.Errorf("%w: %s", config.ErrMissingEnvVar, strings.Join(e.missing, ", "))
	}
	return result, nil
}

// replace resolves one ${...} reference.
func (e *envExpander) replace(match string) string {
	inner := match[2 : len(match)-1]

	name, modifier, _ := strings.Cut(inner, ":")
	value, exists := os.LookupEnv(name)

	switch {
	case strings.HasPrefix(modifier, "-"):
		// ${VAR:-default}
		if !exists || value == "" {
			return modifier[1:]
		}
	case strings.HasPrefix(modifier, "?"):
		// ${VAR:?message}
		if !exists || value == "" {
			msg := modifier[1:]
			if msg == "" {
				msg = "required"
			}
			e.missing = append(e.missing, fmt.Sprintf("%s (%s)", name, msg))
			return match
		}
	default:
		// ${VAR}
		if !exists && e.strict {
			e.missing = append(e.missing, name)
			return match
		}
	}
	return value
}
