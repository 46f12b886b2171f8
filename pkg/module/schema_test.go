package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

func TestApplySchema(t *testing.T) {
	schema := map[string]types.FieldSpec{
		"path":     {Type: "string", Required: true},
		"interval": {Type: "duration", Default: "30s"},
		"retries":  {Type: "int", Default: 3},
		"verbose":  {Type: "bool"},
		"weight":   {Type: "float"},
		"tags":     {Type: "list"},
		"labels":   {Type: "map"},
	}

	tests := []struct {
		name     string
		settings map[string]any
		wantErr  string
	}{
		{
			name:     "valid with defaults",
			settings: map[string]any{"path": "/var/log/syslog"},
		},
		{
			name:     "all fields valid",
			settings: map[string]any{"path": "x", "interval": "1m", "retries": 5, "verbose": true, "weight": 0.5, "tags": []any{"a"}, "labels": map[string]any{"k": "v"}},
		},
		{
			name:     "missing required",
			settings: map[string]any{},
			wantErr:  "required config field",
		},
		{
			name:     "wrong type",
			settings: map[string]any{"path": 42},
			wantErr:  "must be of type string",
		},
		{
			name:     "bad duration",
			settings: map[string]any{"path": "x", "interval": "soon"},
			wantErr:  "must be of type duration",
		},
		{
			name:     "int accepted for float",
			settings: map[string]any{"path": "x", "weight": 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := applySchema("detector.threshold", schema, tt.settings)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, oerrors.IsKind(err, oerrors.KindConfig))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if _, present := tt.settings["interval"]; !present {
				assert.Equal(t, "30s", out["interval"], "default applied")
			}
		})
	}
}

func TestApplySchemaNilSchemaAcceptsAnything(t *testing.T) {
	out, err := applySchema("m", nil, map[string]any{"anything": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out["anything"])
}

func TestApplySchemaExtraKeysPassThrough(t *testing.T) {
	schema := map[string]types.FieldSpec{"path": {Type: "string"}}
	out, err := applySchema("m", schema, map[string]any{"path": "x", "custom": true})
	require.NoError(t, err)
	assert.Equal(t, true, out["custom"])
}
