package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/requestdata"
	"github.com/yungbote/atlasgraph-backend/internal/utils"
)

// TenantMiddleware authenticates the bearer token and scopes the request to
// the tenant_id claim. Every graph and ledger read below this point filters on
// that tenant.
type TenantMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewTenantMiddleware(baseLog *logger.Logger) *TenantMiddleware {
	secret := utils.GetEnv("JWT_SECRET", "", baseLog)
	return &TenantMiddleware{
		log:    baseLog.With("middleware", "TenantMiddleware"),
		secret: []byte(secret),
	}
}

func (tm *TenantMiddleware) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		tenantID, err := tm.tenantFromToken(tokenString)
		if err != nil {
			tm.log.Debug("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		rd := &requestdata.RequestData{
			TokenString:   tokenString,
			TenantID:      tenantID,
			CorrelationID: strings.TrimSpace(c.GetHeader("X-Correlation-ID")),
		}
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

func (tm *TenantMiddleware) tenantFromToken(tokenString string) (uuid.UUID, error) {
	if len(tm.secret) == 0 {
		return uuid.Nil, fmt.Errorf("JWT_SECRET not configured")
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, fmt.Errorf("token invalid")
	}
	raw, ok := claims["tenant_id"].(string)
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("token missing tenant_id claim")
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token tenant_id not a uuid: %w", err)
	}
	return tenantID, nil
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
