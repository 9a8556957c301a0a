package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptional_Text(t *testing.T) {
	b, err := Some(3.5).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "3.5", string(b))

	b, err = Absent[int]().MarshalText()
	require.NoError(t, err)
	assert.Empty(t, b)

	b, err = Some(SeverityFatal).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "FATAL", string(b))

	var sev Optional[SeverityLevel]
	require.NoError(t, sev.UnmarshalText([]byte("SEVERE")))
	assert.Equal(t, Some(SeveritySevere), sev)

	var empty Optional[bool]
	require.NoError(t, empty.UnmarshalText(nil))
	assert.False(t, empty.IsSome())

	var bad Optional[int]
	assert.Error(t, bad.UnmarshalText([]byte("many")))

	var unknown Optional[WeatherCategory]
	assert.Error(t, unknown.UnmarshalText([]byte("HAIL")))
}

func TestOptional_JSON(t *testing.T) {
	type doc struct {
		A Optional[int]    `json:"a"`
		B Optional[string] `json:"b"`
	}

	b, err := json.Marshal(doc{A: Some(7)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":7,"b":null}`, string(b))

	var d doc
	require.NoError(t, json.Unmarshal([]byte(`{"a":null,"b":"x"}`), &d))
	assert.False(t, d.A.IsSome())
	assert.Equal(t, "x", d.B.OrElse(""))
}

func TestOptional_OrElse(t *testing.T) {
	assert.Equal(t, 4, Absent[int]().OrElse(4))
	assert.Equal(t, 1, Some(1).OrElse(4))
}
