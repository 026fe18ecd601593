package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swiftdrop/swiftdrop-backend/internal/adapters/geo"
	"github.com/swiftdrop/swiftdrop-backend/internal/auth"
	"github.com/swiftdrop/swiftdrop-backend/internal/deliveries"
	"github.com/swiftdrop/swiftdrop-backend/internal/locations"
	"github.com/swiftdrop/swiftdrop-backend/internal/reviews"
	"github.com/swiftdrop/swiftdrop-backend/internal/users"
	"github.com/swiftdrop/swiftdrop-backend/internal/verifications"
	stripewebhook "github.com/swiftdrop/swiftdrop-backend/internal/webhooks/stripe"
	"github.com/swiftdrop/swiftdrop-backend/pkg/auth/session"
	"github.com/swiftdrop/swiftdrop-backend/pkg/config"
	"github.com/swiftdrop/swiftdrop-backend/pkg/docstore"
	"github.com/swiftdrop/swiftdrop-backend/pkg/logger"
	"github.com/swiftdrop/swiftdrop-backend/pkg/storage/memory"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()

	cfg := &config.Config{
		App:      config.AppConfig{Env: config.AppEnvDev, Port: "8080"},
		JWT:      config.JWTConfig{Secret: "test-secret", Issuer: "swiftdrop", ExpirationMinutes: 60},
		Payments: config.PaymentsConfig{CommissionRate: 0.25, StripeWebhookSecret: "whsec_test"},
	}
	logg := logger.New(logger.Options{Output: io.Discard})
	store := docstore.New()
	sessionStore := session.NewMemoryStore()
	sessions, err := session.NewManager(sessionStore, sessionStore, cfg.JWT)
	require.NoError(t, err)

	profiles := users.NewRepository(store)
	authSvc, err := auth.NewService(auth.ServiceParams{
		Accounts:    auth.NewAccountsRepository(store),
		Profiles:    profiles,
		Sessions:    sessions,
		OTP:         auth.NewOTPRegistry(),
		Logger:      logg,
		AppConfig:   cfg.App,
		JWTConfig:   cfg.JWT,
		PasswordCfg: cfg.Password,
	})
	require.NoError(t, err)

	deliveryRepo := deliveries.NewRepository(store)
	deliverySvc, err := deliveries.NewService(deliveries.ServiceParams{
		Repo:     deliveryRepo,
		Profiles: profiles,
		Bucket:   memory.NewBucket("swiftdrop-test"),
		Geocoder: geo.NewSim(cfg.Geo),
		Logger:   logg,
		Payments: cfg.Payments,
	})
	require.NoError(t, err)

	locationSvc, err := locations.NewService(store)
	require.NoError(t, err)
	reviewSvc, err := reviews.NewService(store, deliveryRepo)
	require.NoError(t, err)
	verificationSvc, err := verifications.NewService(store, profiles)
	require.NoError(t, err)
	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Deliveries: deliveryRepo,
		Users:      profiles,
		Logger:     logg,
	})
	require.NoError(t, err)

	return NewRouter(Deps{
		Config:        cfg,
		Logger:        logg,
		Sessions:      sessions,
		Auth:          authSvc,
		Deliveries:    deliverySvc,
		Locations:     locationSvc,
		Reviews:       reviewSvc,
		Verifications: verificationSvc,
		StripeWebhook: webhookSvc,
	})
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signUp(t *testing.T, router http.Handler, email string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.NotEmpty(t, envelope.Data.AccessToken)
	return envelope.Data.AccessToken
}

func TestHealthLive(t *testing.T) {
	router := testRouter(t)
	w := doJSON(t, router, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	router := testRouter(t)
	w := doJSON(t, router, http.MethodGet, "/api/v1/users/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterThenFetchEmptyProfile(t *testing.T) {
	router := testRouter(t)
	token := signUp(t, router, "router-test@example.com")

	w := doJSON(t, router, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data *struct{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.Nil(t, envelope.Data, "fresh accounts have no profile row")
}

func TestSenderPostsDelivery(t *testing.T) {
	router := testRouter(t)
	token := signUp(t, router, "sender@example.com")

	w := doJSON(t, router, http.MethodPut, "/api/v1/users/me", token, map[string]string{
		"full_name": "Router Sender",
		"role":      "sender",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/v1/deliveries", token, map[string]any{
		"pickup_address":      "1 First St",
		"dropoff_address":     "2 Second St",
		"package_description": "paperback book",
		"package_size":        "Small",
		"offered_price":       "20.00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var envelope struct {
		Data struct {
			Status        string `json:"status"`
			PlatformFee   string `json:"platform_fee"`
			CourierPayout string `json:"courier_payout"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.Equal(t, "pending", envelope.Data.Status)
	require.Equal(t, "5", envelope.Data.PlatformFee)
	require.Equal(t, "15", envelope.Data.CourierPayout)

	w = doJSON(t, router, http.MethodGet, "/api/v1/deliveries/available", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	router := testRouter(t)
	token := signUp(t, router, "logout@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router := testRouter(t)
	token := signUp(t, router, "not-admin@example.com")

	w := doJSON(t, router, http.MethodGet, "/api/admin/v1/verifications", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestEarningsRequireCourierRole(t *testing.T) {
	router := testRouter(t)
	token := signUp(t, router, "sender-only@example.com")

	w := doJSON(t, router, http.MethodGet, "/api/v1/deliveries/mine/courier/earnings", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestAdminStatsRouteGuarded(t *testing.T) {
	router := testRouter(t)
	token := signUp(t, router, "plain-user@example.com")

	w := doJSON(t, router, http.MethodGet, "/api/admin/v1/stats", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestStripeWebhookRejectsUnsignedPayload(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=1,v1=%s", "deadbeef"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
