package scenario

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/vovakirdan/railsim/internal/registry"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

func init() {
	names, err := fs.Glob(builtinFS, "builtin/*.yaml")
	if err != nil {
		panic(err)
	}
	for _, name := range names {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			panic(err)
		}
		s, err := Parse(data)
		if err != nil {
			panic(fmt.Sprintf("scenario: builtin %s: %v", name, err))
		}
		registry.Register(s.Name, func() registry.Scenario {
			fresh, _ := Parse(data)
			return fresh
		})
	}
}

// Resolve returns the built-in scenario with the given id, or loads arg as
// a scenario file.
func Resolve(arg string) (registry.Scenario, error) {
	if registry.Exists(arg) {
		return registry.Create(arg)
	}
	s, err := Load(arg)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a built-in scenario nor a readable file: %w", arg, err)
	}
	return s, nil
}
