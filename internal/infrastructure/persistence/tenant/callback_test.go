package tenant

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/billflow/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const testTenantID = "0c7f3a52-9a1e-4b83-b6c7-2f4f6d1c9e10"

// invoiceRow is a minimal invoice shape for exercising the callbacks.
type invoiceRow struct {
	ID       string
	TenantID string
	Number   string
}

func (invoiceRow) TableName() string { return "invoices" }

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock
}

func tenantCtx(tenantID string) context.Context {
	ctx := context.Background()
	ctx, _ = logger.WithTenantID(ctx, logger.FromContext(ctx), tenantID)
	return ctx
}

func TestAutoTenantFilter_ScopesSelect(t *testing.T) {
	db, mock := newMockDB(t)
	EnableAutoTenantFilter(db, true)

	mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE "invoices"\."tenant_id" = \$1`).
		WithArgs(testTenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "number"}))

	var rows []invoiceRow
	require.NoError(t, db.WithContext(tenantCtx(testTenantID)).Find(&rows).Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoTenantFilter_ScopesUpdateAndDelete(t *testing.T) {
	db, mock := newMockDB(t)
	EnableAutoTenantFilter(db, true)
	ctx := tenantCtx(testTenantID)

	t.Run("update", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "invoices" SET "number"=\$1 WHERE id = \$2 AND "invoices"\."tenant_id" = \$3`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := db.WithContext(ctx).Model(&invoiceRow{}).
			Where("id = ?", "inv-1").
			Update("number", "INV-2026-0042").Error
		require.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM "invoices" WHERE id = \$1 AND "invoices"\."tenant_id" = \$2`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := db.WithContext(ctx).Where("id = ?", "inv-1").Delete(&invoiceRow{}).Error
		require.NoError(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoTenantFilter_RequiredRejectsMissingTenant(t *testing.T) {
	db, _ := newMockDB(t)
	EnableAutoTenantFilter(db, true)

	var rows []invoiceRow
	err := db.WithContext(context.Background()).Find(&rows).Error
	assert.ErrorIs(t, err, ErrTenantIDRequired)
}

func TestAutoTenantFilter_RejectsMalformedTenant(t *testing.T) {
	db, _ := newMockDB(t)
	EnableAutoTenantFilter(db, true)

	var rows []invoiceRow
	err := db.WithContext(tenantCtx("acme-corp")).Find(&rows).Error
	assert.ErrorIs(t, err, ErrInvalidTenantID)
}

// Cross-tenant system work such as outbox dispatch runs without a tenant in
// context; with required false those statements pass through unfiltered.
func TestAutoTenantFilter_OptionalAllowsMissingTenant(t *testing.T) {
	db, mock := newMockDB(t)
	EnableAutoTenantFilter(db, false)

	mock.ExpectQuery(`SELECT \* FROM "invoices"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "number"}))

	var rows []invoiceRow
	require.NoError(t, db.WithContext(context.Background()).Find(&rows).Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A repository that already filters on tenant_id must not have the
// predicate doubled up; a second bind argument would show up in the
// expectation below.
func TestAutoTenantFilter_ExplicitConditionNotDuplicated(t *testing.T) {
	db, mock := newMockDB(t)
	EnableAutoTenantFilter(db, true)

	mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE tenant_id = \$1`).
		WithArgs(testTenantID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "number"}))

	var rows []invoiceRow
	err := db.WithContext(tenantCtx(testTenantID)).
		Where("tenant_id = ?", testTenantID).
		Find(&rows).Error
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoTenantFilter_UnscopedBypasses(t *testing.T) {
	db, mock := newMockDB(t)
	EnableAutoTenantFilter(db, true)

	mock.ExpectQuery(`SELECT \* FROM "invoices"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "number"}))

	var rows []invoiceRow
	require.NoError(t, db.WithContext(context.Background()).Unscoped().Find(&rows).Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisableAutoTenantFilter(t *testing.T) {
	db, mock := newMockDB(t)
	EnableAutoTenantFilter(db, true)
	DisableAutoTenantFilter(db)

	mock.ExpectQuery(`SELECT \* FROM "invoices"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "number"}))

	var rows []invoiceRow
	require.NoError(t, db.WithContext(context.Background()).Find(&rows).Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}
