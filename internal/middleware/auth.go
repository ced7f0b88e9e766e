package middleware

import (
	"net/http"
	"strings"
	"time"

	"sarnabroker/internal/apierror"
	"sarnabroker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ClaimsKey = "claims"
	ActorKey  = "actor"
)

// JWTClaims are the custom claims carried by every access token. Tokens are
// minted by the identity provider; OwnerID is set for staff accounts only.
type JWTClaims struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	IsStaff bool   `json:"is_staff,omitempty"`
	OwnerID string `json:"owner_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the identity passed to services.
func (c *JWTClaims) Actor() (service.ActingIdentity, error) {
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return service.ActingIdentity{}, err
	}
	actor := service.ActingIdentity{UserID: userID, Role: c.Role, IsStaff: c.IsStaff}
	if c.OwnerID != "" {
		owner, err := uuid.Parse(c.OwnerID)
		if err != nil {
			return service.ActingIdentity{}, err
		}
		actor.EffectiveOwnerID = owner
	}
	return actor, nil
}

// SignToken issues an HS256 token for claims, valid for ttl.
func SignToken(secret string, claims JWTClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.Subject == "" {
		claims.Subject = claims.UserID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// JWTAuth validates the Bearer token on every protected route and stores
// both the raw claims and the derived ActingIdentity on the context.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("authentication required"))
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("invalid or expired token"))
			return
		}

		actor, err := claims.Actor()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("token carries a malformed identity"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(ActorKey, actor)
		c.Next()
	}
}

// RequireRole rejects requests whose token role is not in the allowed list.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		claims, ok := c.MustGet(ClaimsKey).(*JWTClaims)
		if !ok || !allowed[claims.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, apierror.New("insufficient permissions"))
			return
		}
		c.Next()
	}
}

func GetClaims(c *gin.Context) *JWTClaims {
	claims, _ := c.MustGet(ClaimsKey).(*JWTClaims)
	return claims
}

// GetActor returns the identity set by JWTAuth.
func GetActor(c *gin.Context) service.ActingIdentity {
	actor, _ := c.MustGet(ActorKey).(service.ActingIdentity)
	return actor
}
