package subtask

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is one (os_type, category) command chain, keyed by {{var}}
// placeholders filled in by the model's parameterization step and kept
// in an embedded YAML file rather than inline Go literals.
type Template struct {
	Commands         []string `yaml:"commands"`
	HealthChecks     []string `yaml:"health_checks"`
	RollbackCommands []string `yaml:"rollback_commands"`
}

type category struct {
	Keywords  []string            `yaml:"keywords"`
	Templates map[string]Template `yaml:"templates"`
}

type templateLibrary struct {
	Categories map[string]category `yaml:"categories"`
}

var library templateLibrary

func init() {
	if err := yaml.Unmarshal(templatesYAML, &library); err != nil {
		panic("subtask: invalid embedded template library: " + err.Error())
	}
}

// matchCategory finds a category one of whose keywords occurs as a
// substring of title/description. Categories are scanned in map order, so
// when several match, which one is returned is not fixed.
func matchCategory(title, description string) (string, bool) {
	haystack := strings.ToLower(title + " " + description)
	for name, cat := range library.Categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(haystack, kw) {
				return name, true
			}
		}
	}
	return "", false
}

// lookupTemplate resolves a category + os_type to its Template, falling
// back to the category's "default" entry when no os-specific template
// exists.
func lookupTemplate(categoryName, osType string) (Template, bool) {
	cat, ok := library.Categories[categoryName]
	if !ok {
		return Template{}, false
	}
	if t, ok := cat.Templates[strings.ToLower(osType)]; ok {
		return t, true
	}
	if t, ok := cat.Templates["default"]; ok {
		return t, true
	}
	return Template{}, false
}

// render substitutes {{key}} placeholders in each template command using
// params.
func render(commands []string, params map[string]string) []string {
	out := make([]string, len(commands))
	for i, c := range commands {
		for k, v := range params {
			c = strings.ReplaceAll(c, "{{"+k+"}}", v)
		}
		out[i] = c
	}
	return out
}
