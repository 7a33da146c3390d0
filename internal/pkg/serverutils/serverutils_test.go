package serverutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"ai-library-agent/internal/service"
	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/reconcile"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestParseUserID(t *testing.T) {
	user := uuid.New()

	got, err := ParseUserID(sign(t, jwt.MapClaims{"user_id": user.String(), "exp": time.Now().Add(time.Hour).Unix()}), secret)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = ParseUserID(sign(t, jwt.MapClaims{"user_id": user.String()}), "other")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseUserID(sign(t, jwt.MapClaims{"user_id": "not-a-uuid"}), secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseUserID(sign(t, jwt.MapClaims{"user_id": user.String(), "exp": time.Now().Add(-time.Hour).Unix()}), secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseUserID("", secret)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestStatusFor(t *testing.T) {
	type req struct {
		Name string `validate:"required"`
	}
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"fiber error", fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot},
		{"validation", ValidateRequest(req{}), fiber.StatusBadRequest},
		{"thread missing", fmt.Errorf("x: %w", service.ErrThreadNotFound), fiber.StatusNotFound},
		{"thread forbidden", service.ErrThreadForbidden, fiber.StatusForbidden},
		{"action missing", actions.ErrNotFound, fiber.StatusNotFound},
		{"transition", fmt.Errorf("%w: applied -> applied", actions.ErrInvalidTransition), fiber.StatusConflict},
		{"busy", reconcile.ErrBusy, fiber.StatusConflict},
		{"ack", reconcile.ErrAckIncomplete, fiber.StatusBadGateway},
		{"other", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := StatusFor(tc.err)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestJwtMiddlewareAndErrorEnvelope(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/me", NewJwtMiddleware(secret), func(ctx *fiber.Ctx) error {
		id, err := UserID(ctx)
		if err != nil {
			return err
		}
		return ctx.JSON(SuccessResponse("ok", id.String()))
	})
	app.Get("/missing", func(ctx *fiber.Ctx) error {
		return service.ErrThreadNotFound
	})

	user := uuid.New()
	r := httptest.NewRequest("GET", "/me", nil)
	r.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"user_id": user.String()}))
	resp, err := app.Test(r, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	var ok BaseResponse[string]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	assert.Equal(t, user.String(), ok.Data)

	resp, err = app.Test(httptest.NewRequest("GET", "/me", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	var env BaseResponse[any]
	require.NoError(t, json.Unmarshal(body, &env))
	assert.False(t, env.Success)
	assert.Equal(t, 404, env.Code)
}
