package email

import "strings"

// Row is one recipient record keyed by column header.
type Row map[string]string

// Render substitutes {field} placeholders in tmpl with values from row.
// "{{" and "}}" produce literal braces.
func Render(tmpl string, row Row) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	err := scan(tmpl, func(literal string) {
		b.WriteString(literal)
	}, func(field string) error {
		v, ok := row[field]
		if !ok {
			return &TemplateError{Field: field, Row: -1}
		}
		b.WriteString(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Fields lists the distinct placeholders referenced by tmpl in order of first use.
func Fields(tmpl string) ([]string, error) {
	var fields []string
	seen := make(map[string]bool)
	err := scan(tmpl, func(string) {}, func(field string) error {
		if !seen[field] {
			seen[field] = true
			fields = append(fields, field)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func scan(tmpl string, literal func(string), field func(string) error) error {
	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			literal("{")
			i += 2
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			literal("}")
			i += 2
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return &TemplateError{Row: -1, Detail: "single '{' encountered"}
			}
			name := tmpl[i+1 : i+1+end]
			if name == "" || strings.ContainsRune(name, '{') {
				return &TemplateError{Row: -1, Detail: "empty or nested placeholder"}
			}
			if err := field(name); err != nil {
				return err
			}
			i += end + 2
		case c == '}':
			return &TemplateError{Row: -1, Detail: "single '}' encountered"}
		default:
			next := strings.IndexAny(tmpl[i:], "{}")
			if next < 0 {
				literal(tmpl[i:])
				return nil
			}
			literal(tmpl[i : i+next])
			i += next
		}
	}
	return nil
}
