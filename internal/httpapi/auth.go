package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/store"
)

const tokenIssuer = "kasirpos"

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore store.UserStore
	users     map[string]credential
}

type credential struct {
	id          string
	displayName string
	password    string
	role        string
	active      bool
	created     time.Time
}

type posClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore store.UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	manager.bootstrapUsers(context.Background())
	return manager
}

// EnsureAdmin creates an admin account when the user store holds no users
// at all. It is a no-op once any account exists.
func (a *AuthManager) EnsureAdmin(ctx context.Context, username string, password string) (bool, error) {
	if a.userStore == nil || strings.TrimSpace(password) == "" {
		return false, nil
	}
	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return false, err
	}
	if len(users) > 0 {
		return false, nil
	}
	hash, err := hashPassword(password)
	if err != nil {
		return false, err
	}
	err = a.userStore.CreateUser(ctx, domain.UserAccount{
		Username:    username,
		DisplayName: "Administrator",
		Password:    hash,
		Role:        domain.RoleAdmin,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	a.bootstrapUsers(ctx)
	return true, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok || !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, apperror.NewUnauthorized("invalid credentials")
	}
	if !cred.active {
		return domain.LoginResponse{}, apperror.NewUnauthorized("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(cred, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, apperror.NewInternal(err)
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		DisplayName: cred.displayName,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, apperror.NewUnauthorized("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, apperror.NewUnauthorized("invalid token subject")
	}
	name := claims.Name
	if name == "" {
		name = sub
	}
	return domain.Actor{UserID: sub, Role: claims.Role, DisplayName: name}, nil
}

func (a *AuthManager) sign(cred credential, expiresAt time.Time) (string, error) {
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   cred.id,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: cred.role,
		Name: cred.displayName,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.CashierUser{}, apperror.NewValidation("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.CashierUser{}, apperror.NewValidation("username must not contain spaces")
	}
	if strings.TrimSpace(req.Password) == "" || len(req.Password) < 6 {
		return domain.CashierUser{}, apperror.NewValidation("password must be at least 6 characters")
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.CashierUser{}, apperror.NewDuplicate("user", "username", username)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.CashierUser{}, apperror.NewInternal(fmt.Errorf("hash password: %w", err))
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	account := domain.UserAccount{
		Username:    username,
		DisplayName: displayName,
		Password:    passwordHash,
		Role:        domain.RoleCashier,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if a.userStore != nil {
		if err := a.userStore.CreateUser(ctx, account); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return domain.CashierUser{}, apperror.NewDuplicate("user", "username", username)
			}
			return domain.CashierUser{}, apperror.NewInternal(err)
		}
		a.bootstrapUsers(ctx)
	} else {
		a.mu.Lock()
		a.users[username] = credential{
			id:          username,
			displayName: displayName,
			password:    passwordHash,
			role:        domain.RoleCashier,
			active:      true,
			created:     account.CreatedAt,
		}
		a.mu.Unlock()
	}

	a.mu.RLock()
	cred := a.users[username]
	a.mu.RUnlock()
	return cashierView(username, cred), nil
}

func (a *AuthManager) ListCashiers(ctx context.Context) []domain.CashierUser {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	result := make([]domain.CashierUser, 0, len(a.users))
	for username, cred := range a.users {
		if cred.role != domain.RoleCashier {
			continue
		}
		result = append(result, cashierView(username, cred))
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

func cashierView(username string, cred credential) domain.CashierUser {
	return domain.CashierUser{
		ID:          cred.id,
		Username:    username,
		DisplayName: cred.displayName,
		Role:        cred.role,
		Active:      cred.active,
		CreatedAt:   cred.created,
	}
}

// bootstrapUsers refreshes the credential cache from the user store and
// upgrades any plain-text password it finds to a bcrypt hash.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to load users", "error", err)
		return
	}
	if len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				if err := a.userStore.UpdateUserPassword(ctx, username, hashed); err != nil {
					logger.Warn(ctx, "failed to upgrade password hash", "username", username, "error", err)
				}
			}
		}
		id := user.ID
		if id == "" {
			id = username
		}
		displayName := user.DisplayName
		if displayName == "" {
			displayName = username
		}
		a.users[username] = credential{
			id:          id,
			displayName: displayName,
			password:    password,
			role:        user.Role,
			active:      user.Active,
			created:     user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
