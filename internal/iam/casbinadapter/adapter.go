// Package casbinadapter persists batata's RBAC policy rows through
// uptrace/bun: permission triples ("p": role, resource pattern, action) and
// user-role bindings ("g": username, role). It implements the slice of
// casbin's persist.Adapter the IAM enforcer actually exercises — load at
// startup plus the auto-saved single-rule add/remove that mirrors every
// iam.Service grant/revoke.
package casbinadapter

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"github.com/uptrace/bun"
)

// Rule is one stored policy row. Permission rules fill all three value
// columns; grouping rules leave v2 empty.
type Rule struct {
	bun.BaseModel `bun:"table:batata_casbin_rules,alias:cr"`

	Ptype string `bun:",pk,type:varchar(8),notnull"`
	V0    string `bun:",pk,type:varchar(255)"`
	V1    string `bun:",pk,type:varchar(255)"`
	V2    string `bun:",pk,type:varchar(255)"`
}

func newRule(ptype string, values []string) *Rule {
	r := &Rule{Ptype: ptype}
	if len(values) > 0 {
		r.V0 = values[0]
	}
	if len(values) > 1 {
		r.V1 = values[1]
	}
	if len(values) > 2 {
		r.V2 = values[2]
	}
	return r
}

// values returns the populated value columns, trailing empties trimmed, so
// a grouping rule round-trips as two values rather than three.
func (r *Rule) values() []string {
	vals := []string{r.V0, r.V1, r.V2}
	for len(vals) > 0 && vals[len(vals)-1] == "" {
		vals = vals[:len(vals)-1]
	}
	return vals
}

// Adapter loads and saves Rule rows for the enforcer. It does not own the
// *bun.DB lifecycle, and expects the batata_casbin_rules table to exist
// already (see internal/migrations).
type Adapter struct {
	db *bun.DB
}

func NewAdapter(db *bun.DB) (*Adapter, error) {
	return &Adapter{db: db}, nil
}

// LoadPolicy reads every stored rule into m.
func (a *Adapter) LoadPolicy(m model.Model) error {
	var rules []*Rule
	if err := a.db.NewSelect().Model(&rules).Scan(context.Background()); err != nil {
		return fmt.Errorf("load policy rules: %w", err)
	}

	for _, r := range rules {
		vals := r.values()
		if len(vals) == 0 {
			continue
		}
		if err := persist.LoadPolicyArray(append([]string{r.Ptype}, vals...), m); err != nil {
			return fmt.Errorf("apply policy rule %v: %w", vals, err)
		}
	}
	return nil
}

// SavePolicy replaces the stored rule set with m's current policy.
func (a *Adapter) SavePolicy(m model.Model) error {
	var rules []*Rule
	for _, section := range []string{"p", "g"} {
		for ptype, ast := range m[section] {
			for _, vals := range ast.Policy {
				rules = append(rules, newRule(ptype, vals))
			}
		}
	}

	return a.db.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewTruncateTable().Model((*Rule)(nil)).Exec(ctx); err != nil {
			return fmt.Errorf("clear policy rules: %w", err)
		}
		if len(rules) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rules).Exec(ctx); err != nil {
			return fmt.Errorf("write policy rules: %w", err)
		}
		return nil
	})
}

// AddPolicy stores one rule. Duplicates are ignored so the enforcer's
// auto-save stays idempotent alongside the repository writes iam.Service
// performs for the same grant.
func (a *Adapter) AddPolicy(_ string, ptype string, rule []string) error {
	if _, err := a.db.NewInsert().Model(newRule(ptype, rule)).
		On("CONFLICT DO NOTHING").Exec(context.Background()); err != nil {
		return fmt.Errorf("add policy rule: %w", err)
	}
	return nil
}

// RemovePolicy deletes one exact rule. Removing an absent rule is a no-op.
func (a *Adapter) RemovePolicy(_ string, ptype string, rule []string) error {
	r := newRule(ptype, rule)
	if _, err := a.db.NewDelete().Model((*Rule)(nil)).
		Where("ptype = ? AND v0 = ? AND v1 = ? AND v2 = ?", r.Ptype, r.V0, r.V1, r.V2).
		Exec(context.Background()); err != nil {
		return fmt.Errorf("remove policy rule: %w", err)
	}
	return nil
}

// RemoveFilteredPolicy deletes every rule whose values match fieldValues
// starting at fieldIndex, empty strings matching anything. The enforcer
// reaches for this when a role's rules are dropped wholesale.
func (a *Adapter) RemoveFilteredPolicy(_ string, ptype string, fieldIndex int, fieldValues ...string) error {
	q := a.db.NewDelete().Model((*Rule)(nil)).Where("ptype = ?", ptype)

	cols := []string{"v0", "v1", "v2"}
	for i, v := range fieldValues {
		col := fieldIndex + i
		if v == "" || col >= len(cols) {
			continue
		}
		q = q.Where(cols[col]+" = ?", v)
	}

	if _, err := q.Exec(context.Background()); err != nil {
		return fmt.Errorf("remove filtered policy rules: %w", err)
	}
	return nil
}
