package handlers

import (
	"html/template"
	"net/http"

	"github.com/TFMV/gatehouse/pkg/errors"
	"github.com/TFMV/gatehouse/pkg/services"
	"github.com/TFMV/gatehouse/pkg/session"
)

// LoginPath is where unauthenticated page requests are sent.
const LoginPath = "/login"

var (
	loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
<form id="login" method="post" action="/api/auth/login">
<label>Email <input type="email" name="email" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
<p id="error"></p>
<script>
document.getElementById("login").addEventListener("submit", async (e) => {
  e.preventDefault();
  const form = new FormData(e.target);
  const resp = await fetch("/api/auth/login", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({email: form.get("email"), password: form.get("password")}),
  });
  if (resp.ok) { window.location = "/dashboard"; return; }
  document.getElementById("error").textContent = (await resp.json()).error;
});
</script>
</body>
</html>
`))

	dashboardPage = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Dashboard</title></head>
<body>
<h1>Welcome, {{.Name}}</h1>
<p>{{.Email}}</p>
{{if .Bio}}<p>{{.Bio}}</p>{{end}}
<form method="post" action="/api/auth/logout"><button type="submit">Sign out</button></form>
</body>
</html>
`))
)

// PageHandler serves the HTML pages.
type PageHandler struct {
	profiles services.ProfileService
	cookies  CookieIssuer
	logger   Logger
}

// NewPageHandler creates a new page handler.
func NewPageHandler(profiles services.ProfileService, cookies CookieIssuer, logger Logger) *PageHandler {
	return &PageHandler{
		profiles: profiles,
		cookies:  cookies,
		logger:   logger,
	}
}

// Login handles GET /login.
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.render(w, loginPage, nil)
}

// Dashboard handles GET /dashboard. The route is gated, so a session is
// present; a session for a user that no longer exists is cleared.
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := session.UserID(r.Context())
	if !ok {
		http.Redirect(w, r, LoginPath, http.StatusFound)
		return
	}

	user, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		if errors.IsNotFound(err) {
			http.SetCookie(w, h.cookies.ClearCookie())
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}
		code := errors.GetCode(err)
		if isUnavailable(code) {
			h.logger.Error("Database unavailable", "error", err, "path", r.URL.Path)
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("Failed to load dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, dashboardPage, user)
}

func (h *PageHandler) render(w http.ResponseWriter, tmpl *template.Template, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("Failed to render page", "page", tmpl.Name(), "error", err)
	}
}
