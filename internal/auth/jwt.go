package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject = "sub"
	claimUserID  = "user_id"
	claimEmail   = "email"
)

// Identity is a verified caller: the login identifier plus the numeric id
// used as the user_id foreign key throughout the store.
type Identity struct {
	UserID int64
	Email  string
}

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// IdentityFromContext extracts the verified identity from JWT claims.
func IdentityFromContext(c echo.Context) (Identity, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	raw := claimString(claims, claimUserID)
	if raw == "" {
		raw = claimString(claims, claimSubject)
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "user id missing")
	}
	return Identity{
		UserID: userID,
		Email:  claimString(claims, claimEmail),
	}, nil
}

// GenerateToken creates a signed JWT carrying the user's numeric id and
// email.
func GenerateToken(identity Identity, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if identity.UserID <= 0 {
		return "", time.Time{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: strconv.FormatInt(identity.UserID, 10),
		claimUserID:  strconv.FormatInt(identity.UserID, 10),
		claimEmail:   identity.Email,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// RefreshTokenFromContext mints a new token for the already-verified
// caller, preserving the original token's lifespan when it can be derived
// from its iat/exp claims.
func RefreshTokenFromContext(c echo.Context, secret string, defaultExpiresIn time.Duration) (string, time.Time, error) {
	identity, err := IdentityFromContext(c)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresIn := defaultExpiresIn
	if token, ok := c.Get("user").(*jwt.Token); ok && token != nil {
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			iat, iatOK := claims["iat"].(float64)
			exp, expOK := claims["exp"].(float64)
			if iatOK && expOK && exp > iat {
				expiresIn = time.Duration(int64(exp)-int64(iat)) * time.Second
			}
		}
	}

	return GenerateToken(identity, secret, expiresIn)
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
