package util

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// templates caches parsed instructions; every model call of a run renders
// the same handful of prompts.
var templates sync.Map // string -> *template.Template

var templateFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}
		return val
	},
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	},
	"rupees": Rupees,
}

// RenderTemplate replaces {{ }} placeholders in an agent instruction with
// values from session state. Prompts are plain text, so nothing is escaped.
// Missing keys render as "<no value>" unless wrapped in default.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := parseCached(text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, state); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func parseCached(text string) (*template.Template, error) {
	if t, ok := templates.Load(text); ok {
		return t.(*template.Template), nil
	}

	t, err := template.New("prompt").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, err
	}

	actual, _ := templates.LoadOrStore(text, t)
	return actual.(*template.Template), nil
}

// Rupees formats an amount with Indian digit grouping, e.g. ₹1,23,450.
func Rupees(v any) string {
	var amount float64
	switch n := v.(type) {
	case int:
		amount = float64(n)
	case int64:
		amount = float64(n)
	case float64:
		amount = n
	case float32:
		amount = float64(n)
	default:
		return fmt.Sprint(v)
	}

	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}

	digits := fmt.Sprintf("%.0f", amount)
	if len(digits) > 3 {
		head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		digits = strings.Join(groups, ",") + "," + tail
	}

	return sign + "₹" + digits
}
