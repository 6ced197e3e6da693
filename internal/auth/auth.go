// Package auth identifies the engineer triggering an assessment. Every stored calculation
// records who requested it.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"Wallcheck/internal/errs"
	"Wallcheck/internal/logging"
	"Wallcheck/internal/render"
	"Wallcheck/internal/repo"
)

const (
	CookieName = "session_token"
	TokenTTL   = 30 * 24 * time.Hour
)

type contextKey struct{}

// Identity is the authenticated caller.
type Identity struct {
	UserID int    `json:"user_id"`
	Login  string `json:"login"`
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.Login != ""
}

// Login returns the caller's login, or "anonymous" outside an authenticated request.
func Login(ctx context.Context) string {
	if id, ok := IdentityFrom(ctx); ok {
		return id.Login
	}
	return "anonymous"
}

type Authenv struct {
	JWTkey []byte
	Repo   repo.UserStore
	// Secure marks the session cookie HTTPS-only.
	Secure bool
}

type IPRateLimiter struct {
	ips map[string]*rate.Limiter
	mu  sync.Mutex
	r   rate.Limit
	b   int
}

type Loginrequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type Registerrequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type Session struct {
	Identity
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*rate.Limiter),
		r:   r,
		b:   b,
	}
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, exists := i.ips[ip]
	if !exists {
		limiter = rate.NewLimiter(i.r, i.b)
		i.ips[ip] = limiter
	}
	return limiter
}

func (i *IPRateLimiter) LimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		if !i.getLimiter(ip).Allow() {
			w.Header().Set("Retry-After", "1")
			render.JSON(w, http.StatusTooManyRequests, render.ErrorBody{
				Error:     "rate_limited",
				Message:   "too many requests, try again later",
				Retryable: true,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func unauthorized(w http.ResponseWriter, msg string) {
	render.JSON(w, http.StatusUnauthorized, render.ErrorBody{Error: "unauthorized", Message: msg})
}

// tokenFrom reads the bearer token, falling back to the session cookie.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Parse validates a session token and returns the identity it carries.
func (env *Authenv) Parse(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return env.JWTkey, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	login, ok := claims["login"].(string)
	if !ok || login == "" {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	return Identity{UserID: int(userID), Login: login}, nil
}

func (env *Authenv) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFrom(r)
		if raw == "" {
			unauthorized(w, "authentication required")
			return
		}
		id, err := env.Parse(raw)
		if err != nil {
			logging.Debug(r.Context(), "token rejected", slog.Any("err", errs.Loggable(err)))
			unauthorized(w, "invalid or expired session")
			return
		}
		ctx := WithIdentity(r.Context(), id)
		ctx = logging.WithAttrs(ctx, slog.String("user", id.Login))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Issue signs a session token for the user.
func (env *Authenv) Issue(userID int, login string, now time.Time) (Session, error) {
	expires := now.Add(TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"login":   login,
		"iat":     now.Unix(),
		"exp":     expires.Unix(),
	})
	signed, err := token.SignedString(env.JWTkey)
	if err != nil {
		return Session{}, errs.Wrap(err, "sign session token")
	}
	return Session{Identity: Identity{UserID: userID, Login: login}, Token: signed, ExpiresAt: expires}, nil
}

func (env *Authenv) startSession(w http.ResponseWriter, r *http.Request, status, userID int, login string) {
	s, err := env.Issue(userID, login, time.Now())
	if err != nil {
		render.Error(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Expires:  s.ExpiresAt,
		Path:     "/",
		HttpOnly: true,
		Secure:   env.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	render.JSON(w, status, s)
}

func (env *Authenv) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req Registerrequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}
	req.Login = strings.TrimSpace(req.Login)
	req.Email = strings.TrimSpace(req.Email)
	var list []*errs.Error
	if req.Login == "" {
		list = append(list, errs.Validation("login", "login is required"))
	}
	if req.Email == "" {
		list = append(list, errs.Validation("email", "email is required"))
	}
	if len(req.Password) < 8 {
		list = append(list, errs.Validation("password", "password must be at least 8 characters"))
	}
	if err := errs.Join(list...); err != nil {
		render.Error(w, r, err)
		return
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		render.Error(w, r, errs.Wrap(err, "hash password"))
		return
	}
	id, err := env.Repo.CreateUser(r.Context(), req.Login, req.Email, hashedPassword)
	if errors.Is(err, repo.ErrDuplicate) {
		render.JSON(w, http.StatusConflict, render.ErrorBody{Error: "conflict", Message: "login already registered"})
		return
	}
	if err != nil {
		render.Error(w, r, errs.Persistence("create user", err))
		return
	}
	logging.Info(r.Context(), "user registered", slog.String("login", req.Login))
	env.startSession(w, r, http.StatusCreated, id, req.Login)
}

func (env *Authenv) AuthHandler(w http.ResponseWriter, r *http.Request) {
	var req Loginrequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}
	req.Login = strings.TrimSpace(req.Login)
	if req.Login == "" || req.Password == "" {
		render.Error(w, r, errs.Validation("login", "login and password are required"))
		return
	}

	id, storedHash, err := env.Repo.GetBylogin(r.Context(), req.Login)
	if err != nil {
		render.Error(w, r, errs.Persistence("get user", err))
		return
	}
	if id == 0 || bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.Password)) != nil {
		unauthorized(w, "invalid login or password")
		return
	}
	env.startSession(w, r, http.StatusOK, id, req.Login)
}
