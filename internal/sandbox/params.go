package sandbox

import (
	"regexp"
	"strconv"
	"strings"
)

// Param is one tunable declared in a script via a `// param:` comment:
//
//	var period = 20; // param: lookback period in bars
//
// The assigned literal is the default; instance configuration overrides
// it by name.
type Param struct {
	Name        string `json:"name"`
	Default     any    `json:"default"`
	Description string `json:"description,omitempty"`
}

var paramLine = regexp.MustCompile(`^\s*(?:var|let|const)?\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([^;/]+?)\s*;?\s*//\s*param:?\s*(.*)$`)

// ExtractParams scans script source for annotated parameter assignments.
func ExtractParams(script string) []Param {
	var out []Param
	for _, line := range strings.Split(script, "\n") {
		m := paramLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, Param{
			Name:        m[1],
			Default:     parseLiteral(m[2]),
			Description: strings.TrimSpace(m[3]),
		})
	}
	return out
}

// BuildParams merges instance overrides over the script defaults. Only
// declared parameters are overridable; unknown override keys are
// dropped.
func BuildParams(script string, overrides map[string]any) map[string]any {
	params := make(map[string]any)
	for _, p := range ExtractParams(script) {
		params[p.Name] = p.Default
		if v, ok := overrides[p.Name]; ok {
			params[p.Name] = v
		}
	}
	return params
}

func parseLiteral(s string) any {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
