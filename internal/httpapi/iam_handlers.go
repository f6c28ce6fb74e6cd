package httpapi

import "net/http"

// createUser handles POST /v3/auth/user.
func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	username := param(r, "username")
	password := param(r, "password")
	if username == "" || password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}
	if err := h.opts.IAM.CreateUser(r.Context(), username, password); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// updateUserPassword handles PUT /v3/auth/user.
func (h *handlers) updateUserPassword(w http.ResponseWriter, r *http.Request) {
	username := param(r, "username")
	password := paramDefault(r, "newPassword", param(r, "password"))
	if username == "" || password == "" {
		writeBadRequest(w, "username and newPassword are required")
		return
	}
	if err := h.opts.IAM.UpdatePassword(r.Context(), username, password); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// deleteUser handles DELETE /v3/auth/user.
func (h *handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	username := param(r, "username")
	if username == "" {
		writeBadRequest(w, "username is required")
		return
	}
	if err := h.opts.IAM.DeleteUser(r.Context(), username); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// listUsers handles GET /v3/auth/user and /v3/auth/user/search.
func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	page := paramInt(r, "pageNo", 1)
	pageSize := paramInt(r, "pageSize", 100)

	users, total, err := h.opts.IAM.ListUsers(r.Context(), page, pageSize)
	if err != nil {
		writeErr(w, err)
		return
	}

	type userView struct {
		Username string `json:"username"`
		Enabled  bool   `json:"enabled"`
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{Username: u.Username, Enabled: u.Enabled})
	}

	writeOK(w, map[string]any{
		"totalCount":     total,
		"pageNumber":     page,
		"pagesAvailable": pagesAvailable(total, pageSize),
		"pageItems":      out,
	})
}

// grantRole handles POST /v3/auth/role: creates the role if it doesn't
// already exist, then binds it to username.
func (h *handlers) grantRole(w http.ResponseWriter, r *http.Request) {
	role := param(r, "role")
	username := param(r, "username")
	if role == "" || username == "" {
		writeBadRequest(w, "role and username are required")
		return
	}
	_ = h.opts.IAM.CreateRole(r.Context(), role) // idempotent: AlreadyExists is fine here
	if err := h.opts.IAM.GrantRole(r.Context(), username, role); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// revokeRole handles DELETE /v3/auth/role: unbinds (role, username); when
// username is omitted the whole role is deleted.
func (h *handlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	role := param(r, "role")
	if role == "" {
		writeBadRequest(w, "role is required")
		return
	}
	username := param(r, "username")
	if username == "" {
		if err := h.opts.IAM.DeleteRole(r.Context(), role); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, "ok")
		return
	}
	if err := h.opts.IAM.RevokeRole(r.Context(), username, role); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// listRoles handles GET /v3/auth/role and /v3/auth/role/search. When
// username is present it instead lists the roles bound to that user.
func (h *handlers) listRoles(w http.ResponseWriter, r *http.Request) {
	if username := param(r, "username"); username != "" {
		roles, err := h.opts.IAM.RolesForUser(r.Context(), username)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, map[string]any{"username": username, "roles": roles})
		return
	}

	page := paramInt(r, "pageNo", 1)
	pageSize := paramInt(r, "pageSize", 100)
	roles, total, err := h.opts.IAM.ListRoles(r.Context(), page, pageSize)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{
		"totalCount":     total,
		"pageNumber":     page,
		"pagesAvailable": pagesAvailable(total, pageSize),
		"pageItems":      roles,
	})
}

// grantPermission handles POST /v3/auth/permission. action is one of r, w, rw.
func (h *handlers) grantPermission(w http.ResponseWriter, r *http.Request) {
	role := param(r, "role")
	resource := param(r, "resource")
	action := param(r, "action")
	if role == "" || resource == "" || action == "" {
		writeBadRequest(w, "role, resource, and action are required")
		return
	}
	if err := h.opts.IAM.GrantPermission(r.Context(), role, resource, actionOf(action)); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// revokePermission handles DELETE /v3/auth/permission.
func (h *handlers) revokePermission(w http.ResponseWriter, r *http.Request) {
	role := param(r, "role")
	resource := param(r, "resource")
	action := param(r, "action")
	if role == "" || resource == "" || action == "" {
		writeBadRequest(w, "role, resource, and action are required")
		return
	}
	if err := h.opts.IAM.RevokePermission(r.Context(), role, resource, actionOf(action)); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// listPermissions handles GET /v3/auth/permission and its search variants.
// With a role it lists that role's grants; without one it pages through
// every grant.
func (h *handlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	if role := param(r, "role"); role != "" {
		perms, err := h.opts.IAM.ListPermissions(r.Context(), role)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, perms)
		return
	}

	page := paramInt(r, "pageNo", 1)
	pageSize := paramInt(r, "pageSize", 100)
	perms, total, err := h.opts.IAM.ListAllPermissions(r.Context(), page, pageSize)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{
		"totalCount":     total,
		"pageNumber":     page,
		"pagesAvailable": pagesAvailable(total, pageSize),
		"pageItems":      perms,
	})
}

func pagesAvailable(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return pages
}
