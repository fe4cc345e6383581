package templates

import (
	"testing"

	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const namespaceTemplate = `
name: {{namespace}}
version: "0.3"
{{predecessor_key}}: {{predecessor}}

access_policy:
  read:
    - CREATOR
`

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     string
		bindings Bindings
		expected string
		wantErr  bool
	}{
		{
			name:     "all bindings present",
			tmpl:     "name: {{namespace}}\n{{predecessor_key}}: {{predecessor}}\n",
			bindings: Bindings{"namespace": "abc", "predecessor_key": "predecessor", "predecessor": "1234"},
			expected: "name: abc\npredecessor: 1234\n",
		},
		{
			name:     "whitespace inside braces",
			tmpl:     "name: {{ namespace }}",
			bindings: Bindings{"namespace": "abc"},
			expected: "name: abc",
		},
		{
			name:     "empty value is allowed when bound",
			tmpl:     "{{predecessor_key}}: {{predecessor}}",
			bindings: Bindings{"predecessor_key": "#", "predecessor": ""},
			expected: "#: ",
		},
		{
			name:     "scone secret references are left alone",
			tmpl:     "OTP_SECRET: $$SCONE::otp_secret$$",
			bindings: Bindings{},
			expected: "OTP_SECRET: $$SCONE::otp_secret$$",
		},
		{
			name:     "bound value containing braces",
			tmpl:     "account: \"{{scone_account}}\"\n",
			bindings: Bindings{"scone_account": "acme {{prod}}"},
			expected: "account: \"acme {{prod}}\"\n",
		},
		{
			name:     "undefined placeholder",
			tmpl:     "name: {{namespace}}\nvalue: {{secret}}",
			bindings: Bindings{"namespace": "abc"},
			wantErr:  true,
		},
		{
			name:     "malformed placeholder",
			tmpl:     "name: {{name space}}",
			bindings: Bindings{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Render(tt.tmpl, tt.bindings)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, interfaces.ErrTemplate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestRender_ReportsAllMissing(t *testing.T) {
	_, err := Render("{{b}} {{a}} {{b}}", Bindings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a, b")
}

func TestRender_FullBindingsLeaveNoPlaceholders(t *testing.T) {
	state := interfaces.PolicyState{Namespace: "ns"}
	bindings := Bindings(state.Bindings()).With(Bindings{"predecessor_key": "#", "predecessor": ""})

	out, err := Render(namespaceTemplate, bindings)
	require.NoError(t, err)
	assert.NotContains(t, out, "{{")
	assert.Empty(t, Placeholders(out))
	require.NoError(t, CheckYAML(out))
}

func TestBindingsWith(t *testing.T) {
	base := Bindings{"a": "1", "b": "2"}
	ext := base.With(Bindings{"b": "3", "c": "4"})
	assert.Equal(t, Bindings{"a": "1", "b": "3", "c": "4"}, ext)
	assert.Equal(t, "2", base["b"])
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"namespace", "predecessor", "predecessor_key"}, Placeholders(namespaceTemplate))
}

func TestCheckYAML(t *testing.T) {
	assert.NoError(t, CheckYAML("name: ns\nversion: \"0.3\"\n"))
	assert.ErrorIs(t, CheckYAML("name: [unterminated"), interfaces.ErrTemplateInvalid)
	assert.ErrorIs(t, CheckYAML("# only a comment\n"), interfaces.ErrTemplateInvalid)
	assert.NotErrorIs(t, CheckYAML("name: [unterminated"), interfaces.ErrTemplate)
}
