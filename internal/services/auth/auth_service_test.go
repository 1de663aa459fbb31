package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/flippy-market/internal/config"
	"github.com/rajivgeraev/flippy-market/internal/obs"
	"github.com/rajivgeraev/flippy-market/internal/storage/memory"
	"github.com/rajivgeraev/flippy-market/internal/utils"
)

const botToken = "123456:test-bot-token"

// signInitData подписывает данные так же, как это делает Telegram
func signInitData(t *testing.T, values url.Values) string {
	t.Helper()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func newApp(t *testing.T) (*fiber.App, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	cfg := &config.Config{TelegramBotToken: botToken}
	svc := NewAuthService(cfg, store, utils.NewJWTService("secret", time.Hour), obs.Discard())

	app := fiber.New()
	svc.SetupRoutes(app)
	return app, store
}

func postInitData(t *testing.T, app *fiber.App, initData string) *http.Response {
	t.Helper()

	body, err := json.Marshal(map[string]string{"init_data": initData})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/telegram", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestTelegramAuthIssuesTokenForProfile(t *testing.T) {
	app, store := newApp(t)

	initData := signInitData(t, url.Values{
		"auth_date": {strconv.FormatInt(time.Now().Unix(), 10)},
		"query_id":  {"AAH"},
		"user":      {`{"id":42,"first_name":"Marie","last_name":"Dupont","username":"marie"}`},
	})

	resp := postInitData(t, app, initData)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
		User  struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
			TelegramID  int64  `json:"telegram_id"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, "Marie Dupont", body.User.DisplayName)
	assert.Equal(t, int64(42), body.User.TelegramID)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	profileResp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, profileResp.StatusCode)

	var profile struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.NewDecoder(profileResp.Body).Decode(&profile))
	assert.Equal(t, body.User.ID, profile.ID)
	assert.Equal(t, "marie", profile.Username)

	exists, err := store.ProfileExists(t.Context(), mustParse(t, profile.ID))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTelegramAuthRejectsTamperedData(t *testing.T) {
	app, _ := newApp(t)

	initData := signInitData(t, url.Values{
		"auth_date": {strconv.FormatInt(time.Now().Unix(), 10)},
		"user":      {`{"id":42,"first_name":"Marie"}`},
	})
	tampered := strings.Replace(initData, "Marie", "Eve", 1)

	resp := postInitData(t, app, tampered)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTelegramAuthRejectsEmptyBody(t *testing.T) {
	app, _ := newApp(t)

	resp := postInitData(t, app, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProfileRequiresToken(t *testing.T) {
	app, _ := newApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTelegramAuthRateLimited(t *testing.T) {
	app, _ := newApp(t)

	codes := make([]int, 0, 11)
	for range 11 {
		codes = append(codes, postInitData(t, app, "").StatusCode)
	}
	for _, code := range codes[:10] {
		assert.Equal(t, http.StatusBadRequest, code)
	}
	assert.Equal(t, http.StatusTooManyRequests, codes[10])
}

func mustParse(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
