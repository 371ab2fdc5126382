package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// googleTokenInfo represents user data from Google OAuth
type googleTokenInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Picture       string `json:"picture"`
	Name          string `json:"name"`
	HostedDomain  string `json:"hd"`
}

// Google checks ID tokens against Google's tokeninfo endpoint.
type Google struct {
	Endpoint string
	Client   *http.Client
}

func NewGoogle() *Google {
	return &Google{
		Endpoint: googleTokenInfoURL,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *Google) Kind() Kind { return KindGoogle }

func (g *Google) Verify(ctx context.Context, token string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.Endpoint+"?id_token="+url.QueryEscape(token), nil)
	if err != nil {
		return Profile{}, err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("verify google token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%w: google responded %d", ErrInvalidToken, resp.StatusCode)
	}

	var info googleTokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Profile{}, fmt.Errorf("decode google token info: %w", err)
	}
	if info.Sub == "" {
		return Profile{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if info.EmailVerified != "true" {
		return Profile{}, fmt.Errorf("%w: email not verified", ErrInvalidToken)
	}

	profile := Profile{UID: info.Sub, Email: info.Email, Name: info.Name, Logo: info.Picture}
	if info.HostedDomain != "" {
		profile.Fields = map[string]string{"hosted_domain": info.HostedDomain}
	}
	return profile, nil
}
