package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBTC(t *testing.T) {
	assert.Equal(t, "0.0005", FormatBTC(50000))
	assert.Equal(t, "1", FormatBTC(100000000))
	assert.Equal(t, "0.00000001", FormatBTC(1))
	assert.Equal(t, "0", FormatBTC(0))
}

func TestRandomCode(t *testing.T) {
	code, err := RandomCode(10)
	require.NoError(t, err)
	assert.Len(t, code, 10)
	assert.Regexp(t, `^[A-Za-z0-9]{10}$`, code)

	other, err := RandomCode(10)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}
