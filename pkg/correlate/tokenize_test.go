package correlate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "lowercase and split on punctuation",
			input: "High CPU usage on web-01",
			want:  []string{"high", "cpu", "usage", "web"},
		},
		{
			name:  "short tokens dropped",
			input: "io up at db x1",
			want:  nil,
		},
		{
			name:  "duplicates collapse",
			input: "disk disk DISK",
			want:  []string{"disk"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenize(tt.input)
			assert.Len(t, got, len(tt.want))
			for _, tok := range tt.want {
				assert.Contains(t, got, tok)
			}
		})
	}
}

func TestTokenizeIdempotent(t *testing.T) {
	first := tokenize("Service payments-api returned 503 after deploy!")
	joined := make([]string, 0, len(first))
	for tok := range first {
		joined = append(joined, tok)
	}
	second := tokenize(strings.Join(joined, " "))
	assert.Equal(t, first, second)
}

func TestJaccard(t *testing.T) {
	set := func(toks ...string) map[string]struct{} {
		s := make(map[string]struct{})
		for _, tok := range toks {
			s[tok] = struct{}{}
		}
		return s
	}

	assert.Equal(t, 0.0, jaccard(nil, nil), "two empty sets score zero")
	assert.Equal(t, 0.0, jaccard(set("abc"), nil))
	assert.Equal(t, 1.0, jaccard(set("abc", "def"), set("abc", "def")))
	assert.InDelta(t, 1.0/3.0, jaccard(set("abc", "def"), set("abc", "ghi")), 1e-9)
}
