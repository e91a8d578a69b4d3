package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tazhibayda/learnpath-auth/internal/domain"
	"golang.org/x/oauth2"
	ggoogle "golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

const stateTTL = 10 * time.Minute

var (
	ErrBadState     = errors.New("oauth state invalid")
	ErrNoIDToken    = errors.New("no id_token in token response")
	ErrEmailMissing = errors.New("google account has no verified email")
)

// IDTokenValidator checks a Google ID token's signature, issuer and audience.
type IDTokenValidator func(ctx context.Context, rawIDToken, audience string) (*idtoken.Payload, error)

type GoogleOAuth struct {
	cfg      *oauth2.Config
	stateKey []byte
	validate IDTokenValidator
	now      func() time.Time
}

func NewGoogle(clientID, clientSecret, redirectURI, stateSecret string) *GoogleOAuth {
	return &GoogleOAuth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     ggoogle.Endpoint,
		},
		stateKey: []byte(stateSecret),
		validate: idtoken.Validate,
		now:      time.Now,
	}
}

// NewState returns a signed, time-boxed CSRF state value.
func (g *GoogleOAuth) NewState() string {
	return g.MakeState(uuid.NewString() + ":" + strconv.FormatInt(g.now().Unix(), 10))
}

func (g *GoogleOAuth) MakeState(raw string) string {
	return raw + "." + base64.RawURLEncoding.EncodeToString(g.sign(raw))
}

// VerifyState checks the signature and, for states minted by NewState, the age.
func (g *GoogleOAuth) VerifyState(got string) bool {
	i := strings.LastIndexByte(got, '.')
	if i < 0 {
		return false
	}
	raw := got[:i]
	sig, err := base64.RawURLEncoding.DecodeString(got[i+1:])
	if err != nil || !hmac.Equal(g.sign(raw), sig) {
		return false
	}
	if j := strings.LastIndexByte(raw, ':'); j >= 0 {
		ts, err := strconv.ParseInt(raw[j+1:], 10, 64)
		if err != nil {
			return false
		}
		if g.now().Sub(time.Unix(ts, 0)) > stateTTL {
			return false
		}
	}
	return true
}

func (g *GoogleOAuth) sign(raw string) []byte {
	mac := hmac.New(sha256.New, g.stateKey)
	mac.Write([]byte(raw))
	return mac.Sum(nil)
}

func (g *GoogleOAuth) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// ExchangeAndVerify trades the authorization code for tokens and returns the
// identity asserted by the validated ID token.
func (g *GoogleOAuth) ExchangeAndVerify(ctx context.Context, code string) (domain.GoogleProfile, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return domain.GoogleProfile{}, fmt.Errorf("exchange code: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return domain.GoogleProfile{}, ErrNoIDToken
	}
	return g.profileFromIDToken(ctx, raw)
}

func (g *GoogleOAuth) profileFromIDToken(ctx context.Context, raw string) (domain.GoogleProfile, error) {
	p, err := g.validate(ctx, raw, g.cfg.ClientID)
	if err != nil {
		return domain.GoogleProfile{}, fmt.Errorf("validate id_token: %w", err)
	}
	email, _ := p.Claims["email"].(string)
	verified, _ := p.Claims["email_verified"].(bool)
	if email == "" || !verified || p.Subject == "" {
		return domain.GoogleProfile{}, ErrEmailMissing
	}
	name, _ := p.Claims["name"].(string)
	picture, _ := p.Claims["picture"].(string)
	return domain.GoogleProfile{Subject: p.Subject, Email: email, Name: name, Picture: picture}, nil
}
