package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelsAreOrdered(t *testing.T) {
	t.Parallel()

	for i, l := range Levels() {
		assert.Equal(t, i+1, l.Rank(), l)
	}
	assert.Zero(t, Level("SEVERE").Rank())
	assert.False(t, Level("").Valid())
}

func TestParse(t *testing.T) {
	t.Parallel()

	l, err := ParseLevel(" medium-high ")
	require.NoError(t, err)
	assert.Equal(t, MediumHigh, l)

	c, err := ParseCategory("high")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Index())

	_, err = ParseCategory("extreme")
	assert.Error(t, err)
	_, err = ParseLevel("")
	assert.Error(t, err)
}
