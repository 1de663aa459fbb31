package cloudinary

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/flippy-market/internal/config"
	"github.com/rajivgeraev/flippy-market/internal/obs"
	"github.com/rajivgeraev/flippy-market/internal/utils"
)

func newService(t *testing.T, cfg config.CloudinaryConfig) (*CloudinaryService, *utils.JWTService) {
	t.Helper()
	jwtService := utils.NewJWTService("secret", time.Hour)
	s, err := NewCloudinaryService(cfg, jwtService, obs.Discard())
	require.NoError(t, err)
	return s, jwtService
}

func TestGenerateSignature(t *testing.T) {
	s, _ := newService(t, config.CloudinaryConfig{APISecret: "abcd"})

	got, err := s.GenerateSignature(map[string]string{
		"timestamp": "1315060510",
		"public_id": "sample_image",
		"folder":    "",
	})
	require.NoError(t, err)
	assert.Equal(t, "b4ad47fb4e25c7bf5f92a20089f9db59bc302313", got)
}

func TestGenerateUploadParams(t *testing.T) {
	tests := []struct {
		name      string
		folder    string
		signature string
	}{
		{
			name:      "с папкой",
			folder:    "flippy/listings",
			signature: "aec7b2d669108c9b57b8b0f0cf3e1963651f8c82",
		},
		{
			name:      "без папки",
			folder:    "",
			signature: "7c7f3471c35835c981b32009d69cad0c588240ef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, jwtService := newService(t, config.CloudinaryConfig{
				CloudName:    "demo",
				APIKey:       "key",
				APISecret:    "abcd",
				UploadFolder: tt.folder,
				UploadPreset: "market_unsigned",
			})
			s.now = func() time.Time { return time.Unix(1315060510, 0) }

			app := fiber.New()
			s.SetupRoutes(app)

			token, err := jwtService.GenerateToken(uuid.New())
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/api/upload/params?listing_id=abc", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "1315060510", body["timestamp"])
			assert.Equal(t, "abc", body["listing_id"])
			assert.Equal(t, "demo", body["cloud_name"])
			assert.Equal(t, "market_unsigned", body["upload_preset"])
			assert.Equal(t, tt.signature, body["signature"])
		})
	}
}

func TestUploadParamsRequireAuth(t *testing.T) {
	s, _ := newService(t, config.CloudinaryConfig{})
	app := fiber.New()
	s.SetupRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/upload/params", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDeleteImageWithoutKeys(t *testing.T) {
	s, _ := newService(t, config.CloudinaryConfig{})
	assert.ErrorIs(t, s.DeleteImage(context.Background(), "flippy/a"), ErrNotConfigured)
}
