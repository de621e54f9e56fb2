package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"shortstacks/models"
	"shortstacks/services/access"
	"shortstacks/utils"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const blacklistPrefix = "jwt:blacklist:"

type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	ClassID  uint   `json:"class_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth issues and verifies access tokens. Revoked token ids are kept in Redis
// when available, otherwise in process memory.
type Auth struct {
	secret    []byte
	expiresIn time.Duration
	db        *gorm.DB
	redis     *redis.Client
	now       func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewAuth(secret string, expiresIn time.Duration, db *gorm.DB, rdb *redis.Client) *Auth {
	return &Auth{
		secret:    []byte(secret),
		expiresIn: expiresIn,
		db:        db,
		redis:     rdb,
		now:       time.Now,
		revoked:   map[string]time.Time{},
	}
}

// GenerateToken creates a new JWT token for a user. classID is set for student sessions.
func (a *Auth) GenerateToken(user *models.User, classID uint) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.expiresIn)
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		ClassID:  classID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken validates signature, expiry and revocation.
func (a *Auth) ParseToken(ctx context.Context, tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, utils.Unauthorized("Invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, utils.Unauthorized("Invalid token claims")
	}
	if a.isRevoked(ctx, claims.ID) {
		return nil, utils.Unauthorized("Token has been revoked")
	}
	return claims, nil
}

// Revoke blacklists the token id until it would have expired anyway.
func (a *Auth) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(a.now())
	}
	if ttl <= 0 {
		return nil
	}
	if a.redis != nil {
		err := a.redis.Set(ctx, blacklistPrefix+claims.ID, 1, ttl).Err()
		if err == nil {
			return nil
		}
		logrus.WithError(err).Warn("Failed to store revoked token in Redis, keeping it in memory")
	}
	a.mu.Lock()
	a.revoked[claims.ID] = a.now().Add(ttl)
	a.mu.Unlock()
	return nil
}

func (a *Auth) isRevoked(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	if a.redis != nil {
		n, err := a.redis.Exists(ctx, blacklistPrefix+id).Result()
		if err == nil && n > 0 {
			return true
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	until, ok := a.revoked[id]
	if !ok {
		return false
	}
	if a.now().After(until) {
		delete(a.revoked, id)
		return false
	}
	return true
}

// JWTMiddleware validates the bearer token and stores the user and claims in locals.
// A ?token= query parameter is accepted for WebSocket upgrades.
func (a *Auth) JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return err
		}
		claims, err := a.ParseToken(c.UserContext(), tokenString)
		if err != nil {
			return err
		}

		// Verify user still exists and is active
		var user models.User
		if err := a.db.WithContext(c.UserContext()).
			Where("id = ? AND status = ?", claims.UserID, models.StatusActive).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.Unauthorized("User not found or inactive")
			}
			return utils.Internal(err, "Failed to load user")
		}

		c.Locals("user", &user)
		c.Locals("claims", claims)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		if q := c.Query("token"); q != "" {
			return q, nil
		}
		return "", utils.Unauthorized("Missing authorization header")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || tokenString == "" {
		return "", utils.Unauthorized("Invalid authorization header format")
	}
	return tokenString, nil
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*Claims)
		if !ok {
			return utils.Unauthorized("Missing user claims")
		}
		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}
		return utils.Forbidden("Insufficient permissions")
	}
}

// RequireTeacherOrAdmin allows teachers and super admins.
func RequireTeacherOrAdmin() fiber.Handler {
	return RequireRole(models.RoleTeacher, models.RoleSuperAdmin)
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return nil, utils.Unauthorized("User not found in context")
	}
	return user, nil
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, utils.Unauthorized("Claims not found in context")
	}
	return claims, nil
}

// CurrentPrincipal is the caller identity handed to services. It is empty
// when the request is unauthenticated, which services reject.
func CurrentPrincipal(c *fiber.Ctx) access.Principal {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return access.Principal{}
	}
	return access.Principal{UserID: user.ID, Username: user.Username, Role: user.Role}
}
