// Package tenant enforces row-level tenant isolation at the GORM layer.
//
// Every billing table carries a tenant_id column. Registering the filter on
// the shared *gorm.DB makes reads, updates and deletes pick up the tenant
// the HTTP layer resolved into the request context, so a repository cannot
// leak another tenant's subscriptions or invoices by forgetting a WHERE
// clause.
package tenant

import (
	"errors"
	"strings"

	"github.com/billflow/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTenantIDRequired is returned when a statement runs without a tenant in
// its context while the filter is configured as required.
var ErrTenantIDRequired = errors.New("no tenant in request context")

// ErrInvalidTenantID is returned when the tenant carried by the context is
// not a UUID.
var ErrInvalidTenantID = errors.New("tenant id is not a valid UUID")

// filter holds the column the isolation predicate is built on and whether a
// missing tenant fails the statement or lets it run unscoped.
type filter struct {
	column   string
	required bool
}

// EnableAutoTenantFilter registers the isolation callbacks on db. With
// required false, statements without a tenant in context run unfiltered;
// cross-tenant system work such as outbox dispatch and billing runs relies
// on that.
//
// Creates are deliberately not hooked: entities set tenant_id explicitly at
// construction, and a silently injected value would mask a bug there.
func EnableAutoTenantFilter(db *gorm.DB, required bool) {
	f := &filter{column: "tenant_id", required: required}
	_ = db.Callback().Query().Before("gorm:query").Register("tenant:before_query", f.apply)
	_ = db.Callback().Row().Before("gorm:row").Register("tenant:before_row", f.apply)
	_ = db.Callback().Update().Before("gorm:update").Register("tenant:before_update", f.apply)
	_ = db.Callback().Delete().Before("gorm:delete").Register("tenant:before_delete", f.apply)
}

// DisableAutoTenantFilter removes the isolation callbacks. Tests use it;
// production code should never need to.
func DisableAutoTenantFilter(db *gorm.DB) {
	_ = db.Callback().Query().Remove("tenant:before_query")
	_ = db.Callback().Row().Remove("tenant:before_row")
	_ = db.Callback().Update().Remove("tenant:before_update")
	_ = db.Callback().Delete().Remove("tenant:before_delete")
}

// apply adds the tenant predicate to the statement, or records an error on
// it when the tenant is missing or malformed.
func (f *filter) apply(db *gorm.DB) {
	if db.Statement.Context == nil || db.Statement.Unscoped {
		return
	}
	if f.alreadyScoped(db) {
		return
	}

	tenantID := logger.GetTenantID(db.Statement.Context)
	if tenantID == "" {
		if f.required {
			_ = db.AddError(ErrTenantIDRequired)
		}
		return
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		_ = db.AddError(ErrInvalidTenantID)
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: clause.CurrentTable, Name: f.column},
				Value:  tenantID,
			},
		},
	})
}

// alreadyScoped reports whether the statement already filters on the tenant
// column, so a repository's explicit condition is not doubled up.
func (f *filter) alreadyScoped(db *gorm.DB) bool {
	if whereClause, ok := db.Statement.Clauses["WHERE"]; ok {
		if where, ok := whereClause.Expression.(clause.Where); ok {
			for _, expr := range where.Exprs {
				if f.mentionsTenant(expr) {
					return true
				}
			}
		}
	}
	return strings.Contains(db.Statement.SQL.String(), f.column)
}

func (f *filter) mentionsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == f.column
		}
	case clause.IN:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == f.column
		}
	case clause.Expr:
		// Conditions written as raw SQL fragments ("tenant_id = ?")
		return strings.Contains(e.SQL, f.column)
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if f.mentionsTenant(cond) {
				return true
			}
		}
	case clause.OrConditions:
		for _, cond := range e.Exprs {
			if f.mentionsTenant(cond) {
				return true
			}
		}
	}
	return false
}
