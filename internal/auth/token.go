package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts the bearer token from the Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid Authorization header format")
	}

	return parts[1], nil
}

// Claims is the subset of token claims the engine reads. The role comes from
// a flat "role" claim or, for Keycloak realms, from realm_access.roles.
type Claims struct {
	Sub         string `json:"sub"`
	Role        string `json:"role"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (c Claims) Identity() (Identity, error) {
	if c.Sub == "" {
		return Identity{}, errors.New("subject claim not found in token")
	}
	if role := Role(strings.ToLower(c.Role)); role.Valid() {
		return Identity{UserID: c.Sub, Role: role}, nil
	}
	// Highest privilege wins when the realm grants several roles.
	best := Role("")
	for _, raw := range c.RealmAccess.Roles {
		switch Role(strings.ToLower(raw)) {
		case RoleAdmin:
			best = RoleAdmin
		case RoleOrganizer:
			if best != RoleAdmin {
				best = RoleOrganizer
			}
		case RoleParticipant:
			if best == "" {
				best = RoleParticipant
			}
		}
	}
	if best == "" {
		best = RoleParticipant
	}
	return Identity{UserID: c.Sub, Role: best}, nil
}

// ParseUnverified reads the claims without checking the signature. Only the
// dev-mode verifier uses it.
func ParseUnverified(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid token claims")
	}

	var claims Claims
	claims.Sub, _ = mc["sub"].(string)
	claims.Role, _ = mc["role"].(string)
	if realm, ok := mc["realm_access"].(map[string]interface{}); ok {
		if roles, ok := realm["roles"].([]interface{}); ok {
			for _, r := range roles {
				if s, ok := r.(string); ok {
					claims.RealmAccess.Roles = append(claims.RealmAccess.Roles, s)
				}
			}
		}
	}
	return claims.Identity()
}
