package notifx

import (
	"bytes"
	"html/template"
	"sync"
)

// TemplateRegistry stores parsed email templates by name.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]*template.Template)}
}

// Register parses and stores a template under the given name.
func (r *TemplateRegistry) Register(name, tmplString string) error {
	tmpl, err := template.New(name).Parse(tmplString)
	if err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = tmpl
	return nil
}

// Render executes a registered template with the given data.
func (r *TemplateRegistry) Render(name string, data any) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}
	return buf.String(), nil
}
