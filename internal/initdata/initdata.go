// Package initdata validates the signed launch payload a Telegram Mini App
// hands to its backend.
//
// See https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/standupbot/report-server-go/internal/util"
)

const (
	secretKeyConstant = "WebAppData"

	hashKey      = "hash"
	signatureKey = "signature"
	userKey      = "user"
	authDateKey  = "auth_date"
)

var (
	ErrMalformed        = errors.New("initdata: malformed payload")
	ErrMissingSignature = errors.New("initdata: no hash in payload")
	ErrInvalidSignature = errors.New("initdata: invalid signature")
)

// User is the identity object carried in the "user" field.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Data is a verified payload. Fields holds every received pair except hash;
// User is nil when the user field is missing or is not valid JSON.
type Data struct {
	Fields   map[string]string
	User     *User
	AuthDate time.Time
}

// Keys returns the field names in sorted order.
func (d *Data) Keys() []string {
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type pair struct {
	key   string
	value string
}

// Verifier checks payloads against one bot token.
type Verifier struct {
	botToken string
	// IncludeSignatureField keeps the "signature" pair in the
	// data-check-string. Off by default.
	IncludeSignatureField bool
}

func NewVerifier(botToken string) *Verifier {
	return &Verifier{botToken: botToken}
}

// Verify validates raw with the default rules of a Verifier.
func Verify(raw, botToken string) (*Data, error) {
	return NewVerifier(botToken).Verify(raw)
}

func (v *Verifier) Verify(raw string) (*Data, error) {
	pairs, err := parse(raw)
	if err != nil {
		return nil, err
	}

	var claimed string
	var hasHash bool
	signed := make([]pair, 0, len(pairs))
	fields := make(map[string]string, len(pairs))

	for _, p := range pairs {
		if p.key == hashKey {
			claimed = p.value
			hasHash = true
			continue
		}
		fields[p.key] = p.value
		if p.key == signatureKey && !v.IncludeSignatureField {
			continue
		}
		signed = append(signed, p)
	}

	if !hasHash || claimed == "" {
		return nil, ErrMissingSignature
	}

	expected := Sign(dataCheckString(signed), v.botToken)
	if !util.ConstantTimeEqual(expected, claimed) {
		return nil, ErrInvalidSignature
	}

	data := &Data{Fields: fields}
	if rawUser, ok := fields[userKey]; ok {
		var u User
		if err := json.Unmarshal([]byte(rawUser), &u); err == nil {
			data.User = &u
		}
	}
	if ts, err := strconv.ParseInt(fields[authDateKey], 10, 64); err == nil {
		data.AuthDate = time.Unix(ts, 0).UTC()
	}

	return data, nil
}

// dataCheckString sorts pairs by key and joins them as key=value lines.
func dataCheckString(pairs []pair) string {
	sorted := make([]pair, len(pairs))
	copy(sorted, pairs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].key < sorted[j].key })

	lines := make([]string, len(sorted))
	for i, p := range sorted {
		lines[i] = p.key + "=" + p.value
	}
	return strings.Join(lines, "\n")
}

// Sign returns the hex HMAC of dataCheckString. The HMAC key is derived as
// HMAC-SHA256 keyed by "WebAppData" over the bot token.
func Sign(dataCheckString, botToken string) string {
	secret := hmac.New(sha256.New, []byte(secretKeyConstant))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheckString))
	return hex.EncodeToString(mac.Sum(nil))
}

// Encode builds a signed payload from fields, the way Telegram clients send
// it. Values containing '&' do not survive Verify: the payload is decoded
// before it is split.
func Encode(fields map[string]string, botToken string) string {
	pairs := make([]pair, 0, len(fields))
	for k, v := range fields {
		pairs = append(pairs, pair{key: k, value: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	signed := make([]pair, 0, len(pairs))
	for _, p := range pairs {
		if p.key != signatureKey {
			signed = append(signed, p)
		}
	}

	parts := make([]string, 0, len(pairs)+1)
	for _, p := range pairs {
		parts = append(parts, p.key+"="+escape(p.value))
	}
	parts = append(parts, hashKey+"="+Sign(dataCheckString(signed), botToken))
	return strings.Join(parts, "&")
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// parse decodes the whole query string once and then splits it, so encoded
// separators inside values end up as literal separators.
func parse(raw string) ([]pair, error) {
	decoded, err := url.PathUnescape(strings.TrimSpace(raw))
	if err != nil {
		return nil, ErrMalformed
	}

	var pairs []pair
	for _, chunk := range strings.Split(decoded, "&") {
		if chunk == "" {
			continue
		}
		key, value, _ := strings.Cut(chunk, "=")
		pairs = append(pairs, pair{key: key, value: value})
	}
	if len(pairs) == 0 {
		return nil, ErrMalformed
	}
	return pairs, nil
}
