package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotToken = "7342037359:AAHI25ES9xCOMPmvwfJ4TXG9bGmgHqR2Xk8"

func sampleFields() map[string]string {
	return map[string]string{
		"query_id":  "AAHdF6IQAAAAAN0XohDhrOrc",
		"user":      `{"id":279058397,"first_name":"Vladislav","last_name":"Kibenko","username":"vdkfrost","language_code":"ru"}`,
		"auth_date": "1662771648",
	}
}

// referenceHash recomputes the signature step by step, independently of Sign.
func referenceHash(fields map[string]string, botToken string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + fields[k]
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func rawPayload(fields map[string]string, hash string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+"="+escape(fields[k]))
	}
	if hash != "" {
		parts = append(parts, "hash="+hash)
	}
	return strings.Join(parts, "&")
}

func TestVerify(t *testing.T) {
	t.Run("accepts payload signed with the bot token", func(t *testing.T) {
		fields := sampleFields()
		raw := rawPayload(fields, referenceHash(fields, testBotToken))

		data, err := Verify(raw, testBotToken)
		require.NoError(t, err)

		assert.NotContains(t, data.Fields, "hash")
		assert.Equal(t, fields["query_id"], data.Fields["query_id"])
		assert.Equal(t, []string{"auth_date", "query_id", "user"}, data.Keys())
		require.NotNil(t, data.User)
		assert.Equal(t, int64(279058397), data.User.ID)
		assert.Equal(t, "vdkfrost", data.User.Username)
		assert.Equal(t, "Vladislav Kibenko", data.User.FullName())
		assert.Equal(t, time.Unix(1662771648, 0).UTC(), data.AuthDate)
	})

	t.Run("hash order in the payload does not matter", func(t *testing.T) {
		fields := sampleFields()
		raw := "hash=" + referenceHash(fields, testBotToken) + "&" + rawPayload(fields, "")

		_, err := Verify(raw, testBotToken)
		assert.NoError(t, err)
	})

	t.Run("Encode output verifies", func(t *testing.T) {
		raw := Encode(sampleFields(), testBotToken)

		data, err := Verify(raw, testBotToken)
		require.NoError(t, err)
		assert.Equal(t, "ru", data.User.LanguageCode)
	})

	t.Run("rejects payload signed with another token", func(t *testing.T) {
		raw := Encode(sampleFields(), "other:token")

		_, err := Verify(raw, testBotToken)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("rejects missing hash", func(t *testing.T) {
		_, err := Verify(rawPayload(sampleFields(), ""), testBotToken)
		assert.ErrorIs(t, err, ErrMissingSignature)
	})

	t.Run("rejects empty hash", func(t *testing.T) {
		_, err := Verify(rawPayload(sampleFields(), "")+"&hash=", testBotToken)
		assert.ErrorIs(t, err, ErrMissingSignature)
	})

	t.Run("hash comparison is case sensitive", func(t *testing.T) {
		fields := sampleFields()
		raw := rawPayload(fields, strings.ToUpper(referenceHash(fields, testBotToken)))

		_, err := Verify(raw, testBotToken)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("rejects malformed escapes", func(t *testing.T) {
		_, err := Verify("user=%zz&hash=abc", testBotToken)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		_, err := Verify("", testBotToken)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("tolerates user field that is not JSON", func(t *testing.T) {
		fields := sampleFields()
		fields["user"] = "not-json"
		raw := rawPayload(fields, referenceHash(fields, testBotToken))

		data, err := Verify(raw, testBotToken)
		require.NoError(t, err)
		assert.Nil(t, data.User)
		assert.Equal(t, "not-json", data.Fields["user"])
	})

	t.Run("tolerates missing user field", func(t *testing.T) {
		fields := sampleFields()
		delete(fields, "user")
		raw := rawPayload(fields, referenceHash(fields, testBotToken))

		data, err := Verify(raw, testBotToken)
		require.NoError(t, err)
		assert.Nil(t, data.User)
	})
}

func TestVerify_SignatureField(t *testing.T) {
	fields := sampleFields()
	fields["signature"] = "6fbdaab833d39f54518bd5c3eb3f511d035e68cb"
	raw := rawPayload(fields, referenceHash(fields, testBotToken))

	t.Run("signature field is excluded from the check string by default", func(t *testing.T) {
		data, err := NewVerifier(testBotToken).Verify(raw)
		require.NoError(t, err)
		assert.Equal(t, fields["signature"], data.Fields["signature"])
	})

	t.Run("signature field is signed when configured", func(t *testing.T) {
		v := NewVerifier(testBotToken)
		v.IncludeSignatureField = true

		_, err := v.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestVerify_SingleCharacterMutation(t *testing.T) {
	fields := sampleFields()
	hash := referenceHash(fields, testBotToken)

	for key, value := range fields {
		for i := range value {
			mutated := make(map[string]string, len(fields))
			for k, v := range fields {
				mutated[k] = v
			}
			b := []byte(value)
			if b[i] == 'x' {
				b[i] = 'y'
			} else {
				b[i] = 'x'
			}
			mutated[key] = string(b)

			_, err := Verify(rawPayload(mutated, hash), testBotToken)
			assert.ErrorIs(t, err, ErrInvalidSignature, "mutation of %s at %d accepted", key, i)
		}
	}
}

func TestSign(t *testing.T) {
	t.Run("matches reference computation", func(t *testing.T) {
		fields := sampleFields()
		pairs := make([]pair, 0, len(fields))
		for k, v := range fields {
			pairs = append(pairs, pair{key: k, value: v})
		}

		assert.Equal(t, referenceHash(fields, testBotToken), Sign(dataCheckString(pairs), testBotToken))
	})

	t.Run("produces lowercase hex", func(t *testing.T) {
		sig := Sign("a=b", testBotToken)
		assert.Len(t, sig, 64)
		assert.Equal(t, strings.ToLower(sig), sig)
	})
}

func TestDataCheckString(t *testing.T) {
	got := dataCheckString([]pair{{"user", "u"}, {"auth_date", "1"}, {"query_id", "q"}})
	assert.Equal(t, "auth_date=1\nquery_id=q\nuser=u", got)
}
