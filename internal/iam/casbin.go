package iam

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/uptrace/bun"

	"github.com/easynet-cn/batata/internal/iam/casbinadapter"
)

// defaultModel is the embedded RBAC model used when no on-disk model path is
// configured: a principal is granted an action on a resource iff some role
// bound to them carries a permission whose pattern matches the resource and
// whose granted action is a superset of the one required.
const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = role, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.role) && resourceMatch(r.obj, p.obj) && actionAllows(p.act, r.act)
`

// InitEnforcer creates and initializes a Casbin enforcer backed by the given
// *bun.DB, registering batata's resource-pattern and action-superset matcher
// functions and loading policy from the database.
func InitEnforcer(db *bun.DB, modelPath string) (casbin.IEnforcer, error) {
	adapter, err := casbinadapter.NewAdapter(db)
	if err != nil {
		return nil, fmt.Errorf("create casbin adapter: %w", err)
	}

	var m model.Model
	if modelPath != "" {
		m, err = model.NewModelFromFile(modelPath)
	} else {
		m, err = model.NewModelFromString(defaultModel)
	}
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	registerMatchers(enforcer)

	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load casbin policies: %w", err)
	}

	return enforcer, nil
}

// NewTestEnforcer builds an enforcer over the embedded model with no
// persistent adapter, for unit tests that only need in-process policy.
func NewTestEnforcer() (casbin.IEnforcer, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	registerMatchers(enforcer)
	return enforcer, nil
}

func registerMatchers(enforcer casbin.IEnforcer) {
	enforcer.AddFunction("resourceMatch", func(args ...any) (any, error) {
		if len(args) != 2 {
			return false, fmt.Errorf("resourceMatch requires 2 arguments: resource, pattern")
		}
		resource, ok := args[0].(string)
		if !ok {
			return false, fmt.Errorf("resourceMatch: first argument must be string")
		}
		pattern, ok := args[1].(string)
		if !ok {
			return false, fmt.Errorf("resourceMatch: second argument must be string")
		}
		return ResourceMatch(resource, pattern), nil
	})

	enforcer.AddFunction("actionAllows", func(args ...any) (any, error) {
		if len(args) != 2 {
			return false, fmt.Errorf("actionAllows requires 2 arguments: granted, required")
		}
		granted, ok := args[0].(string)
		if !ok {
			return false, fmt.Errorf("actionAllows: first argument must be string")
		}
		required, ok := args[1].(string)
		if !ok {
			return false, fmt.Errorf("actionAllows: second argument must be string")
		}
		return ActionAllows(granted, required), nil
	})
}

// ResourceMatch reports whether resource "namespace:group:dataId" matches a
// permission pattern of the same three-part shape, where any part of the
// pattern may be "*" to match any single segment's value.
func ResourceMatch(resource, pattern string) bool {
	if resource == pattern {
		return true
	}

	rParts := strings.SplitN(resource, ":", 3)
	pParts := strings.SplitN(pattern, ":", 3)
	if len(rParts) != 3 || len(pParts) != 3 {
		return false
	}

	for i := range rParts {
		if pParts[i] != "*" && pParts[i] != rParts[i] {
			return false
		}
	}
	return true
}

// ActionAllows reports whether a granted action covers a required one.
// rw covers r, w, and rw; r only covers r; w only covers w.
func ActionAllows(granted, required string) bool {
	if granted == required {
		return true
	}
	return granted == "rw"
}
