// Package template renders notification subjects and bodies from the
// template registry.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"billing-workers/internal/notification"
	"billing-workers/pkg/registry"

	"github.com/shopspring/decimal"
)

var ErrTemplateNotFound = errors.New("TEMPLATE_NOT_FOUND")

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes {{key}} placeholders from vars. Placeholders without a
// value render as the empty string.
func Render(body string, vars map[string]interface{}) string {
	return placeholder.ReplaceAllStringFunc(body, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := vars[key]
		if !ok || v == nil {
			return ""
		}
		return format(v)
	})
}

func format(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case decimal.Decimal:
		return val.StringFixed(2)
	case time.Time:
		return val.Format(time.DateOnly)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Rendered is the output of a registry-backed render.
type Rendered struct {
	TemplateID string
	Language   string
	Subject    string
	Body       string
}

// Renderer resolves templates by type and language.
type Renderer struct {
	registry        *registry.TemplateRegistry
	defaultLanguage string
}

func NewRenderer(reg *registry.TemplateRegistry, defaultLanguage string) *Renderer {
	return &Renderer{registry: reg, defaultLanguage: defaultLanguage}
}

// Render looks up the template for t in lang (falling back to the default
// language) and renders it against vars.
func (r *Renderer) Render(t notification.Type, lang string, vars map[string]interface{}) (*Rendered, error) {
	if lang == "" {
		lang = r.defaultLanguage
	}
	tpl, ok := r.registry.Lookup(string(t), lang, r.defaultLanguage)
	if !ok {
		return nil, fmt.Errorf("%w: type=%s language=%s", ErrTemplateNotFound, t, lang)
	}

	out := &Rendered{
		TemplateID: tpl.ID,
		Language:   tpl.Language,
		Body:       Render(tpl.Body, vars),
	}
	if tpl.Subject != "" {
		out.Subject = Render(tpl.Subject, vars)
	}
	return out, nil
}
