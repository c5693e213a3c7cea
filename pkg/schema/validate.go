package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("schema validation failed")

// JSONSchema derives a draft-07 JSON schema for the extracted requirements.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	var required []string

	for _, f := range s.Fields {
		var p map[string]any
		switch f.Type {
		case TypeTextarea:
			types := []any{"string", "array"}
			if !f.Required {
				types = append(types, "null")
			}
			p = map[string]any{"type": types, "items": map[string]any{"type": "string"}}
			if f.Required {
				p["minLength"] = 1
				p["minItems"] = 1
			}
		case TypeDropdown:
			opts := make([]any, 0, len(f.Options)+1)
			for _, o := range f.Options {
				opts = append(opts, o)
			}
			if !f.Required {
				opts = append(opts, nil)
			}
			p = map[string]any{"enum": opts}
		default:
			if f.Required {
				p = map[string]any{"type": "string", "minLength": 1}
			} else {
				p = map[string]any{"type": []any{"string", "null"}}
			}
		}
		if f.Label != "" {
			p["title"] = f.Label
		}
		props[f.ID] = p
		if f.Required {
			required = append(required, f.ID)
		}
	}

	out := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"title":      s.Name,
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Normalize trims strings, turns blank strings into null and matches dropdown
// values case-insensitively. data is modified in place and returned.
func (s *Schema) Normalize(data map[string]any) map[string]any {
	for _, f := range s.Fields {
		v, ok := data[f.ID]
		if !ok {
			if !f.Required {
				data[f.ID] = nil
			}
			continue
		}
		str, isString := v.(string)
		if !isString {
			continue
		}
		str = strings.TrimSpace(str)
		if str == "" || strings.EqualFold(str, "null") {
			data[f.ID] = nil
			continue
		}
		data[f.ID] = str
		if f.Type == TypeDropdown {
			for _, o := range f.Options {
				if strings.EqualFold(o, str) {
					data[f.ID] = o
					break
				}
			}
		}
	}
	return data
}

// Validate checks extracted data against JSONSchema.
func (s *Schema) Validate(data map[string]any) error {
	return validate(gojsonschema.NewGoLoader(s.JSONSchema()), data)
}

// ValidateProfile checks a candidate profile against the bundled profile schema.
func ValidateProfile(profile map[string]any) error {
	return validate(gojsonschema.NewBytesLoader(profileSchemaJSON), profile)
}

func validate(schemaLoader gojsonschema.JSONLoader, doc any) error {
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
