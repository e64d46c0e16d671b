package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/platinummonkey/crmgate/pkg/scope"
)

// Where accumulates AND-ed conditions with numbered placeholders
type Where struct {
	conds []string
	args  []interface{}
}

// Arg binds v and returns its placeholder
func (w *Where) Arg(v interface{}) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

// And adds a condition. Placeholders inside cond must come from Arg.
func (w *Where) And(cond string) {
	w.conds = append(w.conds, cond)
}

// Scope restricts rows to sc. tenantCol holds the row's tenant; a row
// passes the user filter when any of ownerCols is a visible user. An empty
// scope matches nothing.
func (w *Where) Scope(sc *scope.Scope, tenantCol string, ownerCols ...string) {
	if sc.IsEmpty() {
		w.And("FALSE")
		return
	}
	if !sc.AllTenants {
		w.And(tenantCol + " = " + w.Arg(*sc.TenantID))
	}
	if sc.AllUsers || len(ownerCols) == 0 {
		return
	}

	ids := w.Arg(pq.Array(sc.UserIDs))
	ors := make([]string, len(ownerCols))
	for i, col := range ownerCols {
		ors[i] = col + " = ANY(" + ids + ")"
	}
	if len(ors) == 1 {
		w.And(ors[0])
		return
	}
	w.And("(" + strings.Join(ors, " OR ") + ")")
}

// SQL renders the WHERE clause, or an empty string
func (w *Where) SQL() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args returns the bound values in placeholder order
func (w *Where) Args() []interface{} {
	return w.args
}

// Page appends LIMIT and OFFSET placeholders and returns the clause and
// the full argument list
func (w *Where) Page(limit, offset int) (string, []interface{}) {
	args := append(append([]interface{}{}, w.args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)+1, len(w.args)+2), args
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a Postgres foreign key
// violation
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
