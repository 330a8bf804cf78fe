package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/avolkov/marketplace/internal/config"
	"github.com/avolkov/marketplace/internal/hash"
	"github.com/avolkov/marketplace/internal/models"
	"github.com/avolkov/marketplace/internal/service/checkout"
)

type testEnv struct {
	T  *testing.T
	E  *echo.Echo
	DB *gorm.DB

	Auth     *AuthHandler
	Products *ProductHandler
	Cart     *CartHandler
	Orders   *OrderHandler
	Chat     *ChatHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	jwtSecret := []byte("test-jwt-secret")
	refreshSecret := []byte("test-refresh-secret")

	return &testEnv{
		T:        t,
		E:        echo.New(),
		DB:       db,
		Auth:     &AuthHandler{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret},
		Products: &ProductHandler{DB: db},
		Cart:     &CartHandler{DB: db},
		Orders:   &OrderHandler{DB: db, Orchestrator: &checkout.Orchestrator{DB: db}},
		Chat:     &ChatHandler{DB: db},
	}
}

func (env *testEnv) doJSONRequest(method, path string, body any) (*httptest.ResponseRecorder, echo.Context) {
	env.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, c
}

func (env *testEnv) createUser(username, role string) models.User {
	env.T.Helper()

	pwHash, err := hash.HashPassword("secret")
	require.NoError(env.T, err)
	user := models.User{Username: username, PasswordHash: pwHash, Role: role}
	require.NoError(env.T, env.DB.Create(&user).Error)
	return user
}

// as authenticates the context the way the auto-refresh middleware would.
func as(c echo.Context, user models.User) {
	c.Set("userID", user.ID)
	c.Set("role", user.Role)
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	return he.Code
}
