package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	rows := []Row{
		{"email": "a@x.com", "name": "Alice"},
		{"email": "b@x.com", "name": "Bob"},
		{"email": "c@x.com", "name": "Carol"},
	}

	var subjects, bodies []string
	for _, row := range rows {
		subject, err := Render("Hello {name}", row)
		require.NoError(t, err)
		body, err := Render("Hi {name}", row)
		require.NoError(t, err)
		subjects = append(subjects, subject)
		bodies = append(bodies, body)
	}

	assert.Equal(t, []string{"Hello Alice", "Hello Bob", "Hello Carol"}, subjects)
	assert.Equal(t, []string{"Hi Alice", "Hi Bob", "Hi Carol"}, bodies)
}

func TestRender_EscapedBraces(t *testing.T) {
	got, err := Render("{{literal}} for {name}", Row{"name": "Dana"})

	require.NoError(t, err)
	assert.Equal(t, "{literal} for Dana", got)
}

func TestRender_MissingField(t *testing.T) {
	_, err := Render("Dear {title} {name}", Row{"name": "Eve"})

	var tmplErr *TemplateError
	require.ErrorAs(t, err, &tmplErr)
	assert.Equal(t, "title", tmplErr.Field)
	assert.Equal(t, "unprocessable", tmplErr.ErrorCode())
}

func TestRender_Malformed(t *testing.T) {
	for _, tmpl := range []string{"Hello {name", "Hello name}", "Hello {}"} {
		t.Run(tmpl, func(t *testing.T) {
			_, err := Render(tmpl, Row{"name": "x"})

			var tmplErr *TemplateError
			require.ErrorAs(t, err, &tmplErr)
			assert.Empty(t, tmplErr.Field)
		})
	}
}

func TestFields(t *testing.T) {
	fields, err := Fields("{name}, your code {code} (again {name})")

	require.NoError(t, err)
	assert.Equal(t, []string{"name", "code"}, fields)
}
