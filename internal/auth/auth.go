package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/hirewire/decree/pkg/types"
)

var (
	ErrMissingBearer = fmt.Errorf("%w: missing bearer token", types.ErrUnauthenticated)
	ErrInvalidToken  = fmt.Errorf("%w: invalid token", types.ErrUnauthenticated)
)

// Claims is the resolved calling identity. Kind distinguishes human accounts
// from system principals so audit records carry a tagged actor rather than a
// guessed boolean.
type Claims struct {
	ActorID   string
	ActorName string
	Email     string
	Role      string
	Kind      types.ActorKind
	Token     string
}

func (c Claims) Actor() types.Actor {
	return types.Actor{Kind: c.Kind, ID: c.ActorID, Name: c.ActorName}
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// StaticAuthenticator resolves bearer tokens against an operator-configured
// token table, with an optional dev token for local runs.
type StaticAuthenticator struct {
	DevToken string
	Tokens   map[string]Claims
}

func NewStaticAuthenticator(devToken string, tokens map[string]Claims) *StaticAuthenticator {
	if tokens == nil {
		tokens = map[string]Claims{}
	}
	return &StaticAuthenticator{DevToken: devToken, Tokens: tokens}
}

func (a *StaticAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}

	if a.DevToken != "" && bearer == a.DevToken {
		return Claims{ActorID: "dev", ActorName: "dev", Role: "admin", Kind: types.ActorHuman, Token: bearer}, nil
	}

	if claims, ok := a.Tokens[bearer]; ok {
		claims.Token = bearer
		return claims, nil
	}

	return Claims{}, ErrInvalidToken
}

func extractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
