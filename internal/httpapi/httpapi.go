package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"kasirpos/backend/internal/apperror"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/logger"
	"kasirpos/backend/internal/service"
)

const maxJSONBody = 1 << 20

type Options struct {
	AllowedOrigin      string
	LoginRatePerMinute int
	MaxUploadBytes     int64
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigin  string
	loginLimiter   *clientLimiter
	maxUploadBytes int64
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	if opts.LoginRatePerMinute < 1 {
		opts.LoginRatePerMinute = 5
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &API{
		service:        svc,
		auth:           auth,
		allowedOrigin:  opts.AllowedOrigin,
		loginLimiter:   newClientLimiter(opts.LoginRatePerMinute, time.Minute),
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

// clientLimiter keeps one token bucket per client key. Buckets idle for
// longer than the refill window are dropped on the next sweep.
type clientLimiter struct {
	mu        sync.Mutex
	every     rate.Limit
	burst     int
	window    time.Duration
	buckets   map[string]*bucket
	lastSwept time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newClientLimiter(perWindow int, window time.Duration) *clientLimiter {
	if perWindow < 1 {
		perWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &clientLimiter{
		every:   rate.Every(window / time.Duration(perWindow)),
		burst:   perWindow,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

func (l *clientLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSwept) > l.window {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.window {
				delete(l.buckets, k)
			}
		}
		l.lastSwept = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/users/cashiers", a.requireAuth(a.handleListCashiers, domain.RoleAdmin))
	mux.HandleFunc("POST /api/v1/users/cashiers", a.requireAuth(a.handleCreateCashier, domain.RoleAdmin))

	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleCreateSale))
	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale))
	mux.HandleFunc("DELETE /api/v1/sales/{id}", a.requireAuth(a.handleDeleteSale))
	mux.HandleFunc("GET /api/v1/sales/{id}/receipt", a.requireAuth(a.handleSaleReceipt))
	mux.HandleFunc("POST /api/v1/returns", a.requireAuth(a.handleCreateReturn))
	mux.HandleFunc("GET /api/v1/invoice-counter", a.requireAuth(a.handleInvoiceCounter))
	mux.HandleFunc("POST /api/v1/invoice-counter/init", a.requireAuth(a.handleInitInvoiceCounter))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct))

	mux.HandleFunc("GET /api/v1/customers", a.requireAuth(a.handleListCustomers))
	mux.HandleFunc("POST /api/v1/customers", a.requireAuth(a.handleCreateCustomer))
	mux.HandleFunc("GET /api/v1/customers/{id}", a.requireAuth(a.handleGetCustomer))

	mux.HandleFunc("GET /api/v1/categories", a.requireAuth(a.handleListCategories))
	mux.HandleFunc("POST /api/v1/categories", a.requireAuth(a.handleCreateCategory))
	mux.HandleFunc("GET /api/v1/categories/{id}", a.requireAuth(a.handleGetCategory))
	mux.HandleFunc("PUT /api/v1/categories/{id}", a.requireAuth(a.handleUpdateCategory))

	mux.HandleFunc("GET /api/v1/expense-categories", a.requireAuth(a.handleListExpenseCategories))
	mux.HandleFunc("POST /api/v1/expense-categories", a.requireAuth(a.handleCreateExpenseCategory))
	mux.HandleFunc("GET /api/v1/expense-categories/{id}", a.requireAuth(a.handleGetExpenseCategory))
	mux.HandleFunc("PUT /api/v1/expense-categories/{id}", a.requireAuth(a.handleUpdateExpenseCategory))
	mux.HandleFunc("GET /api/v1/expenses", a.requireAuth(a.handleListExpenses))
	mux.HandleFunc("POST /api/v1/expenses", a.requireAuth(a.handleCreateExpense))
	mux.HandleFunc("PUT /api/v1/expenses/{id}", a.requireAuth(a.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/v1/expenses/{id}", a.requireAuth(a.handleDeleteExpense))
	mux.HandleFunc("POST /api/v1/uploads", a.requireAuth(a.handleUpload))

	mux.HandleFunc("GET /api/v1/settings", a.requireAuth(a.handleGetSettings))
	mux.HandleFunc("PUT /api/v1/settings", a.requireAuth(a.handleUpdateSettings))

	mux.HandleFunc("GET /api/v1/suppliers", a.requireAuth(a.handleListSuppliers))
	mux.HandleFunc("POST /api/v1/suppliers", a.requireAuth(a.handleCreateSupplier))
	mux.HandleFunc("GET /api/v1/purchase-orders", a.requireAuth(a.handleListPurchaseOrders))
	mux.HandleFunc("POST /api/v1/purchase-orders", a.requireAuth(a.handleCreatePurchaseOrder))
	mux.HandleFunc("POST /api/v1/purchase-orders/{id}/receive", a.requireAuth(a.handleReceivePurchaseOrder))

	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleListAuditLogs))

	return a.withMiddleware(mux)
}

// requireAuth resolves the bearer token into an actor on the request
// context. Per-operation role rules live in the service; roles given here
// only gate endpoints the service does not own.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, r, apperror.NewUnauthorized("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, r, apperror.NewForbidden("role "+actor.Role+" may not access this resource"))
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With("user_id", actor.UserID))
		next(w, r.WithContext(ctx))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "ok", map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, r, apperror.NewRateLimited("too many login attempts, try again later"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "login successful", resp)
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "cashiers", a.auth.ListCashiers(r.Context()))
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "cashier created", cashier)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		reqLogger := logger.Default().With("method", r.Method, "path", r.URL.Path, "request_id", requestID)
		r = r.WithContext(logger.WithLogger(r.Context(), reqLogger))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		reqLogger.Infow("request completed", "status", rec.status, "duration", time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.NewValidation("request body too large")
		}
		return apperror.NewValidation("invalid JSON body: " + err.Error())
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseTimeParam accepts RFC3339 or YYYY-MM-DD. A bare date used as an
// upper bound covers the whole day.
func parseTimeParam(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &ts, nil
	}
	day, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return nil, apperror.NewValidation("invalid date " + trimmed + ", use YYYY-MM-DD or RFC3339")
	}
	if endOfDay {
		day = day.Add(24 * time.Hour)
	}
	return &day, nil
}

type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// writeError renders err as an envelope. Internal errors keep their cause
// out of the response and in the request log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		appErr = apperror.NewInternal(err)
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Errorw("request failed", "code", appErr.Code, "status", appErr.HTTPStatus, "error", err)
	}

	body := envelope{Success: false, Message: appErr.Message, Code: appErr.Code}
	if appErr.Code != apperror.CodeInternal {
		body.Details = appErr.Details
	}
	writeJSON(w, appErr.HTTPStatus, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
