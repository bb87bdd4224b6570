package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates holds one parsed set per kind, each sharing the layout.
type Templates struct {
	sets map[Kind]*template.Template
}

func LoadTemplates() (*Templates, error) {
	t := &Templates{sets: make(map[Kind]*template.Template, len(Kinds))}
	for _, k := range Kinds {
		set, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+string(k)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", k, err)
		}
		t.sets[k] = set
	}
	return t, nil
}

func (t *Templates) Render(p Params) (string, error) {
	set, ok := t.sets[p.Kind()]
	if !ok {
		return "", fmt.Errorf("no template for %q", p.Kind())
	}
	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, "layout", p); err != nil {
		return "", fmt.Errorf("render %s: %w", p.Kind(), err)
	}
	return buf.String(), nil
}
