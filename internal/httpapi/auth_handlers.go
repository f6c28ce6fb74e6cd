package httpapi

import "net/http"

// login backs both /v1/auth/login and /v3/auth/user/login: it verifies
// username/password and issues a bearer accessToken.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	username := param(r, "username")
	password := param(r, "password")
	if username == "" || password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	token, err := h.opts.IAM.Login(r.Context(), username, password)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeOK(w, map[string]any{
		"accessToken": token,
		"tokenTtl":    int64(h.opts.IAM.TokenTTL().Seconds()),
		"globalAdmin": username == h.opts.RootUsername,
		"username":    username,
	})
}
