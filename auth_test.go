package threatlens

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	u := &User{PasswordHash: hash}
	if !u.CheckPassword("correct horse") {
		t.Fatal("correct password rejected")
	}
	if u.CheckPassword("wrong") {
		t.Fatal("wrong password accepted")
	}
	if _, err := HashPassword("short"); err == nil {
		t.Fatal("five-character password accepted")
	}
}

func TestIssueAndParseToken(t *testing.T) {
	u := &User{ID: "u-1", Username: "alice", Role: RoleAdmin}
	token, err := IssueToken(u, "secret")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseToken(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u-1" || claims.Username != "alice" || claims.Role != RoleAdmin {
		t.Fatalf("claims mismatch: %+v", claims)
	}

	if _, err := ParseToken(token, "other-secret"); err == nil {
		t.Fatal("token verified with wrong secret")
	}
	if _, err := ParseToken("not.a.token", "secret"); err == nil {
		t.Fatal("garbage token accepted")
	}
}

func TestUserValidate(t *testing.T) {
	valid := &User{Username: "bob", Email: "bob@example.com", PasswordHash: "h", Role: RoleUser}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}

	tests := []struct {
		name string
		mut  func(*User)
	}{
		{"empty username", func(u *User) { u.Username = " " }},
		{"bad email", func(u *User) { u.Email = "not-an-email" }},
		{"empty hash", func(u *User) { u.PasswordHash = "" }},
		{"bad role", func(u *User) { u.Role = "Overlord" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := *valid
			tt.mut(&u)
			if err := u.Validate(); err == nil {
				t.Fatal("invalid user accepted")
			}
		})
	}
}

func newAuthApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/private", RequireAuth(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user": AuthClaims(c).Username})
	})
	app.Get("/admin", RequireAuth(secret), RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestRequireAuth(t *testing.T) {
	const secret = "test-secret"
	app := newAuthApp(secret)
	token, err := IssueToken(&User{ID: "u-1", Username: "alice", Role: RoleDeveloper}, secret)
	if err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodGet, "/private", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer token status = %d, want 200", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: authCookie, Value: token})
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie token status = %d, want 200", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer tampered")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("tampered token status = %d, want 401", resp.StatusCode)
	}
}

func TestRequireRole(t *testing.T) {
	const secret = "test-secret"
	app := newAuthApp(secret)

	devToken, _ := IssueToken(&User{ID: "u-1", Username: "dev", Role: RoleDeveloper}, secret)
	adminToken, _ := IssueToken(&User{ID: "u-2", Username: "root", Role: RoleAdmin}, secret)

	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+devToken)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("developer on admin route = %d, want 403", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin on admin route = %d, want 200", resp.StatusCode)
	}
}
