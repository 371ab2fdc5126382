package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const appleKeysURL = "https://appleid.apple.com/auth/keys"

var errUnknownKey = errors.New("unknown signing key")

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// AppleKeys caches Apple's published RSA signing keys by kid. The set is
// fetched again when it is older than MaxAge or a token names a kid it
// has not seen, at most once per MinRefresh.
type AppleKeys struct {
	URL        string
	Client     *http.Client
	MaxAge     time.Duration
	MinRefresh time.Duration
	Now        func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewAppleKeys(url string) *AppleKeys {
	if url == "" {
		url = appleKeysURL
	}
	return &AppleKeys{
		URL:        url,
		Client:     &http.Client{Timeout: 10 * time.Second},
		MaxAge:     24 * time.Hour,
		MinRefresh: time.Minute,
	}
}

// Keyfunc resolves the token's kid to a public key. It satisfies jwt.Keyfunc.
func (k *AppleKeys) Keyfunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", errUnknownKey)
	}
	return k.Key(context.Background(), kid)
}

func (k *AppleKeys) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	key, ok := k.keys[kid]
	stale := k.keys == nil || now.Sub(k.fetchedAt) > k.MaxAge
	if ok && !stale {
		return key, nil
	}
	if stale || now.Sub(k.fetchedAt) >= k.MinRefresh {
		keys, err := k.fetch(ctx)
		if err != nil {
			if ok {
				return key, nil
			}
			return nil, err
		}
		k.keys, k.fetchedAt = keys, now
		key, ok = keys[kid]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownKey, kid)
	}
	return key, nil
}

func (k *AppleKeys) now() time.Time {
	if k.Now != nil {
		return k.Now()
	}
	return time.Now()
}

func (k *AppleKeys) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := k.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch apple keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch apple keys: status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode apple keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, entry := range set.Keys {
		if entry.Kty != "RSA" || entry.Kid == "" {
			continue
		}
		pub, err := entry.rsaKey()
		if err != nil {
			return nil, fmt.Errorf("apple key %q: %w", entry.Kid, err)
		}
		keys[entry.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("apple key set has no RSA keys")
	}
	return keys, nil
}

func (j jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("malformed key")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
