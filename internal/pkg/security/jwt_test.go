package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(42)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "Aorko", claims.Issuer)
}

func TestValidateExpiredToken(t *testing.T) {
	claims := &UserClaims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	require.NoError(t, err)

	_, err = ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateMalformedToken(t *testing.T) {
	_, err := ValidateToken("definitely-not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestValidateWrongSigningMethod(t *testing.T) {
	// none 算法必须被拒绝
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &UserClaims{UserID: 42}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestExtractSignature(t *testing.T) {
	token, err := GenerateToken(42)
	require.NoError(t, err)

	sig, err := ExtractSignature(token)
	require.NoError(t, err)
	assert.Equal(t, strings.Split(token, ".")[2], sig)

	_, err = ExtractSignature("two.parts")
	assert.Error(t, err)
}
