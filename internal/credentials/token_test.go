package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenService_MintVerify(t *testing.T) {
	svc := NewTokenService([]byte("secret"))

	token, err := svc.Mint(7)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	userId, err := svc.Verify(token)
	assert.NoError(t, err)
	assert.Equal(t, 7, userId)
}

func TestTokenService_Verify_rejectsWrongKey(t *testing.T) {
	signed := NewTokenService([]byte("secret"))
	other := NewTokenService([]byte("different"))

	token, err := signed.Mint(7)
	assert.NoError(t, err)

	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestTokenService_Verify_rejectsGarbage(t *testing.T) {
	svc := NewTokenService([]byte("secret"))
	_, err := svc.Verify("not-a-token")
	assert.Error(t, err)
}
