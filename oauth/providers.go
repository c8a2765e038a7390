package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/sync/errgroup"
)

const (
	googleAPIBase = "https://openidconnect.googleapis.com"
	githubAPIBase = "https://api.github.com"

	maxUserInfoBytes = 1 << 20
)

// NewGoogle returns a client for Google sign-in.
func NewGoogle(creds Credentials, policy cookie.Policy) *Client {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURL,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint:     endpoints.Google,
	}
	return newClient(account.ProviderGoogle, cfg, fetchGoogle, googleAPIBase, policy)
}

// NewGitHub returns a client for GitHub sign-in.
func NewGitHub(creds Credentials, policy cookie.Policy) *Client {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     endpoints.GitHub,
	}
	return newClient(account.ProviderGitHub, cfg, fetchGitHub, githubAPIBase, policy)
}

type googleUser struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func fetchGoogle(ctx context.Context, hc *http.Client, apiBase string) (profile, error) {
	var u googleUser
	if err := getJSON(ctx, hc, apiBase+"/v1/userinfo", &u); err != nil {
		return profile{}, err
	}
	if !u.EmailVerified {
		return profile{}, fmt.Errorf("%w: google email not verified", ErrUserInfo)
	}
	return profile{ExternalID: u.Sub, Email: u.Email, Name: u.Name, Avatar: u.Picture}, nil
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func fetchGitHub(ctx context.Context, hc *http.Client, apiBase string) (profile, error) {
	var (
		u      githubUser
		emails []githubEmail
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return getJSON(gctx, hc, apiBase+"/user", &u) })
	g.Go(func() error { return getJSON(gctx, hc, apiBase+"/user/emails", &emails) })
	if err := g.Wait(); err != nil {
		return profile{}, err
	}

	if u.ID == 0 {
		return profile{}, fmt.Errorf("%w: github user id missing", ErrUserInfo)
	}
	email := ""
	for _, e := range emails {
		if e.Primary && e.Verified {
			email = e.Email
			break
		}
	}
	if email == "" {
		return profile{}, fmt.Errorf("%w: no primary verified github email", ErrUserInfo)
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}
	return profile{
		ExternalID: strconv.FormatInt(u.ID, 10),
		Email:      email,
		Name:       name,
		Avatar:     u.AvatarURL,
	}, nil
}

func getJSON(ctx context.Context, hc *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrUserInfo, url, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUserInfo, url, err)
	}
	return nil
}
