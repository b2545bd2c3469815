package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeVerifier(t *testing.T) {
	v1, err := NewCodeVerifier()
	require.NoError(t, err)
	v2, err := NewCodeVerifier()
	require.NoError(t, err)

	assert.Len(t, v1, 43)
	assert.NotEqual(t, v1, v2)
}

func TestCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", CodeChallenge(verifier))
}
