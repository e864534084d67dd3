package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/models"
)

const (
	SessionCookieName = "ticrm_session"
	sessionIssuer     = "ticrm"
	sessionAudience   = "ticrm-miniapp"
	sessionContextKey = "session"
)

// SessionClaims are the application claims carried next to the registered ones.
type SessionClaims struct {
	TelegramID int64  `json:"tid"`
	Role       string `json:"role"`
	Name       string `json:"name"`
}

// Validate satisfies validator.CustomClaims.
func (c *SessionClaims) Validate(ctx context.Context) error {
	if !models.IsValidRole(c.Role) {
		return fmt.Errorf("invalid role claim %q", c.Role)
	}
	return nil
}

type sessionToken struct {
	jwt.RegisteredClaims
	SessionClaims
}

// Session is the authenticated identity attached to a request.
type Session struct {
	UserID     uuid.UUID `json:"id"`
	TelegramID int64     `json:"telegramId"`
	Role       string    `json:"role"`
	Name       string    `json:"fullName"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (s *Session) IsStaff() bool {
	return models.IsStaffRole(s.Role)
}

// SessionManager issues and validates HS256 session tokens kept in a cookie.
type SessionManager struct {
	secret    []byte
	maxAge    time.Duration
	secure    bool
	validator *validator.Validator
	log       logger.ILogger
	now       func() time.Time
}

func NewSessionManager(secret string, maxAge time.Duration, secure bool, log logger.ILogger) (*SessionManager, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}

	m := &SessionManager{secret: []byte(secret), maxAge: maxAge, secure: secure, log: log, now: time.Now}

	v, err := validator.New(
		func(ctx context.Context) (interface{}, error) { return m.secret, nil },
		validator.HS256,
		sessionIssuer,
		[]string{sessionAudience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &SessionClaims{}
		}),
		validator.WithAllowedClockSkew(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up the session validator: %w", err)
	}
	m.validator = v
	return m, nil
}

func (m *SessionManager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue signs a session token for user.
func (m *SessionManager) Issue(user *models.User) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.maxAge)

	var tid int64
	if user.TelegramID != nil {
		tid = *user.TelegramID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionToken{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    sessionIssuer,
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		SessionClaims: SessionClaims{TelegramID: tid, Role: user.Role, Name: user.FullName},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, expires, nil
}

// SetCookie stores token in the session cookie.
func (m *SessionManager) SetCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(m.maxAge.Seconds()), "/", "", m.secure, true)
}

func (m *SessionManager) ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", m.secure, true)
}

// Parse validates a raw token and returns its session.
func (m *SessionManager) Parse(ctx context.Context, token string) (*Session, error) {
	claims, err := m.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return sessionFromClaims(validated)
}

func sessionFromClaims(claims *validator.ValidatedClaims) (*Session, error) {
	custom, ok := claims.CustomClaims.(*SessionClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}
	userID, err := uuid.Parse(claims.RegisteredClaims.Subject)
	if err != nil {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Session subject is not a user id"}
	}
	return &Session{
		UserID:     userID,
		TelegramID: custom.TelegramID,
		Role:       custom.Role,
		Name:       custom.Name,
		ExpiresAt:  time.Unix(claims.RegisteredClaims.Expiry, 0).UTC(),
	}, nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}

// RequireSession rejects requests without a valid session with 401. The
// token is read from the session cookie, or from a Bearer header.
func (m *SessionManager) RequireSession() gin.HandlerFunc {
	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		if !errors.Is(err, jwtmiddleware.ErrJWTMissing) {
			m.log.Debug("rejected session token", logger.Error(err))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"Authentication required"}}`)); writeErr != nil {
			m.log.Warning("failed to write error response", logger.Error(writeErr))
		}
	}

	checker := jwtmiddleware.New(
		m.validator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
		jwtmiddleware.WithTokenExtractor(jwtmiddleware.MultiTokenExtractor(
			jwtmiddleware.AuthHeaderTokenExtractor,
			jwtmiddleware.CookieTokenExtractor(SessionCookieName),
		)),
	)

	return func(c *gin.Context) {
		passed := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			if !ok {
				abortUnauthorized(c, "Authentication required")
				return
			}
			session, err := sessionFromClaims(claims)
			if err != nil {
				abortUnauthorized(c, "Invalid session")
				return
			}
			passed = true
			c.Set(sessionContextKey, session)
			c.Next()
		}

		checker.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

// GetSession returns the session stored by RequireSession.
func GetSession(c *gin.Context) (*Session, error) {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_SESSION", Message: "Session not found in context"}
	}

	session, ok := value.(*Session)
	if !ok {
		return nil, &AuthError{Code: "INVALID_SESSION", Message: "Session is not in the expected format"}
	}
	return session, nil
}

// SetSession stores a session in the gin context.
func SetSession(c *gin.Context, session *Session) {
	c.Set(sessionContextKey, session)
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
