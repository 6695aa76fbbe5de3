package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hexDigest(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// signBody produces a signature header in the t + "." + body scheme.
func signBody(secret string, body []byte) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	return "t=" + ts + ",v0=" + hexDigest(secret, []byte(ts+"."+string(body)))
}

func TestVerifySignatureSchemes(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"agent_id":"ag_1"}`)
	ts := "1700000000"

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"body only", "t=" + ts + ",v0=" + hexDigest(secret, body), true},
		{"ts dot body", "t=" + ts + ",v0=" + hexDigest(secret, []byte(ts+"."+string(body))), true},
		{"ts body", "t=" + ts + ",v0=" + hexDigest(secret, []byte(ts+string(body))), true},
		{"no v0", "t=" + ts, false},
		{"empty header", "", false},
		{"wrong digest", "t=" + ts + ",v0=" + hexDigest("other-secret", body), false},
		{"spaces tolerated", "t=" + ts + " , v0=" + hexDigest(secret, body), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySignature(secret, body, tt.header))
		})
	}
}

func TestVerifySignatureEmptySecret(t *testing.T) {
	body := []byte(`{}`)
	header := "t=1,v0=" + hexDigest("", body)
	assert.False(t, VerifySignature("", body, header))
}

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("abc", "abc"))
	assert.False(t, safeEqual("abc", "abd"))
	assert.False(t, safeEqual("abc", "abcd"))
	assert.True(t, safeEqual("", ""))
}

func TestPanelTokenRoundTrip(t *testing.T) {
	token, err := issuePanelToken("secret", "A1", time.Hour)
	require.NoError(t, err)

	sub, err := parsePanelToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "A1", sub)
}

func TestPanelTokenWrongSecret(t *testing.T) {
	token, err := issuePanelToken("secret", "A1", time.Hour)
	require.NoError(t, err)

	_, err = parsePanelToken("other", token)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestPanelTokenExpired(t *testing.T) {
	token, err := issuePanelToken("secret", "A1", -time.Minute)
	require.NoError(t, err)

	_, err = parsePanelToken("secret", token)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestPanelTokenGarbage(t *testing.T) {
	_, err := parsePanelToken("secret", "not-a-jwt")
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestCheckPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, checkPassword(string(hash), "hunter2"))
	assert.False(t, checkPassword(string(hash), "wrong"))
	assert.False(t, checkPassword("not-a-hash", "hunter2"))
}
