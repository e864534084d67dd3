package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	ErrHashMissing   = errors.New("init data: hash is missing")
	ErrInvalidHash   = errors.New("init data: hash mismatch")
	ErrUserMissing   = errors.New("init data: user is missing")
	ErrUserMalformed = errors.New("init data: user is malformed")
)

// UserProfile identifies a platform user. It is the "user" object of
// mini-app init data and is also built from bot update senders.
type UserProfile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u UserProfile) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type pair struct {
	key   string
	value string
}

// parseInitData splits a query string into decoded pairs, keeping order.
func parseInitData(raw string) ([]pair, error) {
	var pairs []pair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("init data: bad key %q: %w", key, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("init data: bad value for %q: %w", k, err)
		}
		pairs = append(pairs, pair{key: k, value: v})
	}
	return pairs, nil
}

// webAppSecret is HMAC-SHA256 keyed with "WebAppData" over the bot token.
func webAppSecret(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

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

func signCheckString(botToken, checkString string) string {
	mac := hmac.New(sha256.New, webAppSecret(botToken))
	mac.Write([]byte(checkString))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyInitData checks the hash of mini-app init data against botToken.
func VerifyInitData(initData, botToken string) error {
	pairs, err := parseInitData(initData)
	if err != nil {
		return ErrInvalidHash
	}

	hash := ""
	found := false
	rest := pairs[:0]
	for _, p := range pairs {
		if p.key == "hash" {
			hash, found = p.value, true
			continue
		}
		rest = append(rest, p)
	}
	if !found || hash == "" {
		return ErrHashMissing
	}

	candidate := signCheckString(botToken, dataCheckString(rest))
	if !hmac.Equal([]byte(candidate), []byte(hash)) {
		return ErrInvalidHash
	}
	return nil
}

// ValidateInitData verifies init data and extracts the launching user.
func ValidateInitData(initData, botToken string) (*UserProfile, error) {
	if err := VerifyInitData(initData, botToken); err != nil {
		return nil, err
	}

	pairs, _ := parseInitData(initData)
	raw := ""
	for _, p := range pairs {
		if p.key == "user" {
			raw = p.value
			break
		}
	}
	if raw == "" {
		return nil, ErrUserMissing
	}

	var user UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserMalformed, err)
	}
	if user.ID == 0 {
		return nil, ErrUserMalformed
	}
	return &user, nil
}

// SignInitData builds a signed init-data string from fields. Used by tests
// and local tooling that need to impersonate the mini-app.
func SignInitData(fields map[string]string, botToken string) string {
	pairs := make([]pair, 0, len(fields))
	for k, v := range fields {
		pairs = append(pairs, pair{key: k, value: v})
	}
	hash := signCheckString(botToken, dataCheckString(pairs))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hash)
	return values.Encode()
}
