package registry

import (
	"fmt"
	"strings"
)

// Path is a parsed "<package>.<module>:<Symbol>" identifier.
type Path struct {
	Raw     string
	Package string
	Module  string
	Symbol  string
}

// ParsePath validates the textual shape of a strategy path.
// It needs exactly one ':' with a non-empty symbol, and a module of at least two dot segments.
func ParsePath(raw string) (Path, error) {
	if strings.Count(raw, ":") != 1 {
		return Path{}, fmt.Errorf("expected exactly one ':' in %q", raw)
	}
	module, symbol, _ := strings.Cut(raw, ":")
	module = strings.TrimSpace(module)
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return Path{}, fmt.Errorf("empty symbol in %q", raw)
	}

	segments := strings.Split(module, ".")
	if len(segments) < 2 {
		return Path{}, fmt.Errorf("module %q needs at least <package>.<module>", module)
	}
	for _, s := range segments {
		if s == "" {
			return Path{}, fmt.Errorf("empty segment in module %q", module)
		}
	}

	return Path{Raw: raw, Package: segments[0], Module: module, Symbol: symbol}, nil
}

// normalize swaps dashes for underscores, the usual mismatch between distribution and import names.
func normalize(module string) string {
	return strings.ReplaceAll(module, "-", "_")
}

func packageOf(module string) string {
	pkg, _, _ := strings.Cut(module, ".")
	return pkg
}
