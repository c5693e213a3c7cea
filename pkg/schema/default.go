package schema

import (
	_ "embed"
)

//go:embed default_template.yml
var defaultSchemaYAML []byte

//go:embed profile.schema.json
var profileSchemaJSON []byte

// DefaultSchemaYAML returns the raw default schema YAML bytes
func DefaultSchemaYAML() []byte {
	return defaultSchemaYAML
}

// LoadDefault returns the bundled job requirements schema
func LoadDefault() (*Schema, error) {
	return Parse(defaultSchemaYAML)
}

// ProfileSchemaJSON returns the JSON schema a candidate profile must satisfy.
func ProfileSchemaJSON() []byte {
	return profileSchemaJSON
}
