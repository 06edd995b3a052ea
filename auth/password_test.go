package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPassword_HashAndVerify(t *testing.T) {
	req := require.New(t)

	t.Run("should verify the original password", func(t *testing.T) {
		hash, err := HashPassword("CorrectHorse#42Battery")
		req.NoError(err)
		req.Contains(hash, "$argon2id$")

		ok, err := VerifyPassword("CorrectHorse#42Battery", hash)
		req.NoError(err)
		req.True(ok)
	})

	t.Run("should reject a wrong password", func(t *testing.T) {
		hash, err := HashPassword("CorrectHorse#42Battery")
		req.NoError(err)

		ok, err := VerifyPassword("WrongHorse#42Battery", hash)
		req.NoError(err)
		req.False(ok)
	})

	t.Run("should produce a different hash per call thanks to the salt", func(t *testing.T) {
		first, err := HashPassword("CorrectHorse#42Battery")
		req.NoError(err)
		second, err := HashPassword("CorrectHorse#42Battery")
		req.NoError(err)
		req.NotEqual(first, second)
	})

	t.Run("should fail on a malformed hash", func(t *testing.T) {
		_, err := VerifyPassword("whatever", "not-a-phc-string")
		req.Error(err)
	})
}

func TestValidateRegister(t *testing.T) {
	req := require.New(t)

	t.Run("should accept a valid registration", func(t *testing.T) {
		req.NoError(ValidateRegister(RegisterRequest{
			Nickname: "alice",
			Password: "CorrectHorse#42Battery",
		}))
	})

	t.Run("should reject a nickname with spaces", func(t *testing.T) {
		req.Error(ValidateRegister(RegisterRequest{
			Nickname: "al ice",
			Password: "CorrectHorse#42Battery",
		}))
	})

	t.Run("should reject a short password", func(t *testing.T) {
		req.Error(ValidateRegister(RegisterRequest{
			Nickname: "alice",
			Password: "short",
		}))
	})

	t.Run("should reject a nickname over fifty characters", func(t *testing.T) {
		long := make([]byte, 51)
		for i := range long {
			long[i] = 'a'
		}
		req.Error(ValidateRegister(RegisterRequest{
			Nickname: string(long),
			Password: "CorrectHorse#42Battery",
		}))
	})
}
