package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/angelshop/reservation-api/internal/utils"
)

const testSecret = "unit-test-secret"

func protectedEcho(roles ...string) *echo.Echo {
	e := echo.New()
	g := e.Group("/v1")
	g.Use(JWTAuth(testSecret))
	if len(roles) > 0 {
		g.Use(RequireRole(roles...))
	}
	g.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"email": CallerEmail(c)})
	})
	return e
}

func doGet(e *echo.Echo, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := protectedEcho()

	if rec := doGet(e, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no header: status = %d, want 401", rec.Code)
	}
	if rec := doGet(e, "Basic abc"); rec.Code != http.StatusUnauthorized {
		t.Errorf("non-bearer: status = %d, want 401", rec.Code)
	}
	if rec := doGet(e, "Bearer not-a-token"); rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", rec.Code)
	}

	wrong, err := utils.NewSessionToken("other-secret", "ana@example.com", utils.RoleCustomer, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := doGet(e, "Bearer "+wrong.Token); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: status = %d, want 401", rec.Code)
	}

	tok, err := utils.NewSessionToken(testSecret, "ana@example.com", utils.RoleCustomer, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rec := doGet(e, "Bearer "+tok.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "ana@example.com") {
		t.Errorf("body = %s, want caller email", body)
	}

	expired, err := utils.NewSessionToken(testSecret, "ana@example.com", utils.RoleCustomer, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if rec := doGet(e, "Bearer "+expired.Token); rec.Code != http.StatusUnauthorized {
		t.Errorf("expired token: status = %d, want 401", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	e := protectedEcho(utils.RoleAdmin)

	customer, err := utils.NewSessionToken(testSecret, "ana@example.com", utils.RoleCustomer, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := doGet(e, "Bearer "+customer.Token); rec.Code != http.StatusForbidden {
		t.Errorf("customer on admin route: status = %d, want 403", rec.Code)
	}

	admin, err := utils.NewSessionToken(testSecret, "boss@example.com", utils.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := doGet(e, "Bearer "+admin.Token); rec.Code != http.StatusOK {
		t.Errorf("admin on admin route: status = %d, want 200", rec.Code)
	}
}
