package scope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single", "profile", []string{"profile"}},
		{"multiple", "profile email", []string{"email", "profile"}},
		{"duplicates collapse", "email profile email", []string{"email", "profile"}},
		{"extra whitespace", "  profile\temail \n", []string{"email", "profile"}},
		{"empty", "", []string{}},
		{"blank", "   ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw).Slice())
		})
	}
}

func TestSet(t *testing.T) {
	s := Of("profile", "email", " ")
	assert.True(t, s.Has("email"))
	assert.False(t, s.Has("admin"))
	assert.Equal(t, "email profile", s.String())
	assert.True(t, Of("email").SubsetOf(s))
	assert.False(t, Of("email", "admin").SubsetOf(s))
}

func TestSetJSON(t *testing.T) {
	type record struct {
		Scope Set `json:"scope"`
	}

	data, err := json.Marshal(record{Scope: Of("profile", "email")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"scope":"email profile"}`, string(data))

	var r record
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, Of("email", "profile"), r.Scope)
}
