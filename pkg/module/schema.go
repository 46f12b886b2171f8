package module

import (
	"time"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// applySchema validates settings against a manifest-declared schema
// and returns a copy with defaults filled in for absent fields. A nil
// schema accepts anything. Keys not named by the schema pass through
// untouched so modules can carry free-form settings alongside the
// declared ones.
func applySchema(moduleID string, schema map[string]types.FieldSpec, settings map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(settings)+len(schema))
	for k, v := range settings {
		out[k] = v
	}
	if schema == nil {
		return out, nil
	}

	for field, spec := range schema {
		value, present := out[field]
		if !present {
			if spec.Required {
				return nil, oerrors.Configf("module %s: required config field %q is missing", moduleID, field)
			}
			if spec.Default != nil {
				out[field] = spec.Default
			}
			continue
		}
		if err := checkFieldType(moduleID, field, spec.Type, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkFieldType(moduleID, field, fieldType string, value any) error {
	ok := false
	switch fieldType {
	case "string":
		_, ok = value.(string)
	case "int":
		switch value.(type) {
		case int, int64:
			ok = true
		}
	case "float":
		switch value.(type) {
		case float64, float32, int, int64:
			ok = true
		}
	case "bool":
		_, ok = value.(bool)
	case "duration":
		if s, isStr := value.(string); isStr {
			_, err := time.ParseDuration(s)
			ok = err == nil
		}
	case "list":
		_, ok = value.([]any)
	case "map":
		_, ok = value.(map[string]any)
	default:
		return oerrors.Configf("module %s: config field %q declares unknown type %q", moduleID, field, fieldType)
	}
	if !ok {
		return oerrors.Configf("module %s: config field %q must be of type %s, got %T", moduleID, field, fieldType, value)
	}
	return nil
}
