package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/middleware"
	"budgetkit/internal/models"
	"budgetkit/internal/services"
	"budgetkit/internal/validator"
)

const (
	testUserID  = "0190a1b2-0000-7000-8000-000000000001"
	testOtherID = "0190a1b2-0000-7000-8000-000000000002"
)

// --- mock services ---

type mockUserService struct {
	createUserFn            func(email, password, firstName, lastName string) (*models.User, error)
	getUserByEmailFn        func(email string) (*models.User, error)
	getUserByIDFn           func(id string) (*models.User, error)
	updateProfileFn         func(id string, update services.ProfileUpdate) (*models.User, error)
	verifyPasswordFn        func(user *models.User, password string) bool
	attemptLoginFn          func(email, password string) (*models.User, error)
	storeRefreshTokenHashFn func(userID, tokenHash string) error
	getRefreshTokenHashFn   func(userID string) (string, error)
}

func (m *mockUserService) CreateUser(email, password, firstName, lastName string) (*models.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(email, password, firstName, lastName)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByEmail(email string) (*models.User, error) {
	if m.getUserByEmailFn != nil {
		return m.getUserByEmailFn(email)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByID(id string) (*models.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(id)
	}
	return &models.User{Base: models.Base{ID: id}, Locale: "en"}, nil
}

func (m *mockUserService) UpdateProfile(id string, update services.ProfileUpdate) (*models.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(id, update)
	}
	return &models.User{Base: models.Base{ID: id}}, nil
}

func (m *mockUserService) VerifyPassword(user *models.User, password string) bool {
	if m.verifyPasswordFn != nil {
		return m.verifyPasswordFn(user, password)
	}
	return true
}

func (m *mockUserService) AttemptLogin(email, password string) (*models.User, error) {
	if m.attemptLoginFn != nil {
		return m.attemptLoginFn(email, password)
	}
	return &models.User{}, nil
}

func (m *mockUserService) StoreRefreshTokenHash(userID, tokenHash string) error {
	if m.storeRefreshTokenHashFn != nil {
		return m.storeRefreshTokenHashFn(userID, tokenHash)
	}
	return nil
}

func (m *mockUserService) GetRefreshTokenHash(userID string) (string, error) {
	if m.getRefreshTokenHashFn != nil {
		return m.getRefreshTokenHashFn(userID)
	}
	return "", nil
}

var _ services.UserServicer = (*mockUserService)(nil)

type mockAuditService struct{}

func (m *mockAuditService) Log(_ string, _ services.AuditAction, _ services.AuditResource, _, _ string, _ map[string]any) {
}

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func newTestTokens() *middleware.TokenManager {
	return middleware.NewTokenManager("test-secret-key-that-is-long-enough", 15*time.Minute, 7*24*time.Hour)
}

func setupAuthRouter(handler *AuthHandler) *gin.Engine {
	r := gin.New()
	r.POST("/auth/register", handler.Register)
	r.POST("/auth/login", handler.Login)
	r.POST("/auth/refresh", handler.Refresh)
	r.GET("/profile", injectUserID(testUserID), handler.GetProfile)
	r.PUT("/profile", injectUserID(testUserID), handler.UpdateProfile)
	return r
}

func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", uid)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}

// --- tests ---

func userEcho(email, _, firstName, lastName string) (*models.User, error) {
	return &models.User{
		Base:      models.Base{ID: testUserID},
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Currency:  "USD",
		Locale:    "en",
	}, nil
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svc        *mockUserService
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       `{"email":"test@example.com","password":"password123","first_name":"John","last_name":"Doe"}`,
			svc:        &mockUserService{createUserFn: userEcho},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing email",
			body:       `{"password":"password123"}`,
			svc:        &mockUserService{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "short password",
			body:       `{"email":"test@example.com","password":"short"}`,
			svc:        &mockUserService{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name: "email taken",
			body: `{"email":"dup@example.com","password":"password123"}`,
			svc: &mockUserService{createUserFn: func(_, _, _, _ string) (*models.User, error) {
				return nil, apperrors.ErrDuplicateEmail
			}},
			wantStatus: http.StatusConflict,
			wantCode:   "DUPLICATE_EMAIL",
		},
		{
			name: "token storage fails",
			body: `{"email":"test@example.com","password":"password123"}`,
			svc: &mockUserService{
				createUserFn:            userEcho,
				storeRefreshTokenHashFn: func(_, _ string) error { return fmt.Errorf("db connection lost") },
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := &recordingAuditService{}
			r := setupAuthRouter(NewAuthHandler(tt.svc, audit, newTestTokens()))

			rec := doRequest(r, "POST", "/auth/register", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantCode != "" {
				assertErrorCode(t, parseJSON(t, rec), tt.wantCode)
				if len(audit.entries) != 0 {
					t.Errorf("expected no audit entry on failure, got %+v", audit.entries)
				}
				return
			}
			user := parseJSON(t, rec)["user"].(map[string]interface{})
			if user["email"] != "test@example.com" || user["currency"] != "USD" {
				t.Errorf("unexpected user %v", user)
			}
			if len(audit.entries) != 1 || audit.entries[0].action != "REGISTER" {
				t.Errorf("expected a REGISTER audit entry, got %+v", audit.entries)
			}
		})
	}
}

func TestAuthHandler_IssuedTokens(t *testing.T) {
	tokens := newTestTokens()
	var storedHash string
	svc := &mockUserService{
		attemptLoginFn: func(email, _ string) (*models.User, error) {
			return &models.User{Base: models.Base{ID: testUserID}, Email: email}, nil
		},
		storeRefreshTokenHashFn: func(_, hash string) error {
			storedHash = hash
			return nil
		},
	}
	r := setupAuthRouter(NewAuthHandler(svc, &mockAuditService{}, tokens))

	rec := doRequest(r, "POST", "/auth/login", `{"email":"test@example.com","password":"password123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)

	access, _ := result["access_token"].(string)
	guarded := gin.New()
	guarded.GET("/whoami", middleware.AuthMiddleware(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID"))
	})
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	whoami := httptest.NewRecorder()
	guarded.ServeHTTP(whoami, req)
	if whoami.Code != http.StatusOK || whoami.Body.String() != testUserID {
		t.Errorf("access token not accepted: %d %s", whoami.Code, whoami.Body.String())
	}

	refresh, _ := result["refresh_token"].(string)
	if len(storedHash) != 64 || middleware.HashToken(refresh) != storedHash {
		t.Errorf("stored hash %q does not match the issued refresh token", storedHash)
	}
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		loginErr   error
		wantStatus int
		wantCode   string
	}{
		{name: "ok", body: `{"email":"test@example.com","password":"password123"}`, wantStatus: http.StatusOK},
		{name: "bad credentials", body: `{"email":"test@example.com","password":"wrong"}`, loginErr: apperrors.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_CREDENTIALS"},
		{name: "locked", body: `{"email":"locked@example.com","password":"password123"}`, loginErr: apperrors.ErrAccountLocked, wantStatus: http.StatusLocked, wantCode: "ACCOUNT_LOCKED"},
		{name: "empty body", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
		{name: "not an email", body: `{"email":"nope","password":"password123"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{attemptLoginFn: func(email, _ string) (*models.User, error) {
				if tt.loginErr != nil {
					return nil, tt.loginErr
				}
				return &models.User{Base: models.Base{ID: testUserID}, Email: email}, nil
			}}
			audit := &recordingAuditService{}
			r := setupAuthRouter(NewAuthHandler(svc, audit, newTestTokens()))

			rec := doRequest(r, "POST", "/auth/login", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantCode != "" {
				assertErrorCode(t, parseJSON(t, rec), tt.wantCode)
				return
			}
			if len(audit.entries) != 1 || audit.entries[0].action != "LOGIN" {
				t.Errorf("expected a LOGIN audit entry, got %+v", audit.entries)
			}
		})
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	tokens := newTestTokens()
	refresh, err := tokens.GenerateRefreshToken(testUserID, "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate refresh token: %v", err)
	}
	access, _ := tokens.GenerateAccessToken(testUserID, "test@example.com")

	tests := []struct {
		name       string
		body       string
		storedHash string
		userErr    error
		wantStatus int
		wantCode   string
	}{
		{name: "rotates", body: `{"refresh_token":"` + refresh + `"}`, storedHash: middleware.HashToken(refresh), wantStatus: http.StatusOK},
		{name: "revoked", body: `{"refresh_token":"` + refresh + `"}`, storedHash: "somethingelse", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "never stored", body: `{"refresh_token":"` + refresh + `"}`, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "user gone", body: `{"refresh_token":"` + refresh + `"}`, storedHash: middleware.HashToken(refresh), userErr: apperrors.ErrUserNotFound, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "access token", body: `{"refresh_token":"` + access + `"}`, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "missing", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rotated string
			svc := &mockUserService{
				getRefreshTokenHashFn: func(string) (string, error) { return tt.storedHash, nil },
				getUserByIDFn: func(id string) (*models.User, error) {
					if tt.userErr != nil {
						return nil, tt.userErr
					}
					return &models.User{Base: models.Base{ID: id}}, nil
				},
				storeRefreshTokenHashFn: func(_, hash string) error {
					rotated = hash
					return nil
				},
			}
			r := setupAuthRouter(NewAuthHandler(svc, &mockAuditService{}, tokens))

			rec := doRequest(r, "POST", "/auth/refresh", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantCode != "" {
				assertErrorCode(t, parseJSON(t, rec), tt.wantCode)
				if rotated != "" {
					t.Error("expected no token rotation on failure")
				}
				return
			}
			if rotated == "" || rotated == tt.storedHash {
				t.Errorf("expected a fresh refresh hash to be stored, got %q", rotated)
			}
		})
	}
}

func TestAuthHandler_GetProfile(t *testing.T) {
	t.Run("returns the caller's profile", func(t *testing.T) {
		svc := &mockUserService{getUserByIDFn: func(id string) (*models.User, error) {
			return &models.User{Base: models.Base{ID: id}, Email: "test@example.com", Currency: "EUR", Locale: "de"}, nil
		}}
		r := setupAuthRouter(NewAuthHandler(svc, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		user := parseJSON(t, rec)["user"].(map[string]interface{})
		if user["id"] != testUserID || user["locale"] != "de" || user["currency"] != "EUR" {
			t.Errorf("unexpected profile %v", user)
		}
	})

	t.Run("requires a user in context", func(t *testing.T) {
		r := gin.New()
		r.GET("/profile", NewAuthHandler(&mockUserService{}, &mockAuditService{}, newTestTokens()).GetProfile)

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("maps a missing user to 404", func(t *testing.T) {
		svc := &mockUserService{getUserByIDFn: func(string) (*models.User, error) { return nil, apperrors.ErrUserNotFound }}
		r := setupAuthRouter(NewAuthHandler(svc, &mockAuditService{}, newTestTokens()))

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "USER_NOT_FOUND")
	})
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	var got services.ProfileUpdate
	svc := &mockUserService{updateProfileFn: func(id string, update services.ProfileUpdate) (*models.User, error) {
		got = update
		return &models.User{Base: models.Base{ID: id}, Currency: "EUR", Locale: "de-DE"}, nil
	}}
	r := setupAuthRouter(NewAuthHandler(svc, &mockAuditService{}, newTestTokens()))

	rec := doRequest(r, "PUT", "/profile", `{"currency":"eur","locale":"de-DE"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.FirstName != nil || got.LastName != nil {
		t.Errorf("expected absent names to stay nil, got %+v", got)
	}
	if got.Currency == nil || *got.Currency != "eur" || got.Locale == nil || *got.Locale != "de-DE" {
		t.Errorf("expected currency and locale passed through, got %+v", got)
	}

	for _, body := range []string{
		`{"currency":"XYZ1"}`,
		`{"locale":"not a locale!"}`,
		`{"first_name":"` + strings.Repeat("a", 101) + `"}`,
	} {
		rec := doRequest(r, "PUT", "/profile", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
			continue
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	}
}
