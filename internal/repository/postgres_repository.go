package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const discountColumns = `id, code, name, type, value, minimum_order_amount, maximum_discount_amount,
	usage_limit, usage_limit_per_customer, used_count, applies_to,
	applicable_product_ids, applicable_category_ids, starts_at, ends_at, is_active`

type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresRepository(cred *Credentials, log *zap.Logger) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	log.Info("connected to postgres", zap.String("host", cred.Host), zap.String("db", cred.DBName))
	return &PostgresRepository{db: db, logger: log}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "pricing_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiscountCode(row rowScanner) (*domain.DiscountCode, error) {
	var (
		d                     domain.DiscountCode
		kind, appliesTo       string
		minOrder, maxDiscount decimal.NullDecimal
		limit, perCustomer    sql.NullInt32
		productIDs, catIDs    pq.Int64Array
		startsAt, endsAt      sql.NullTime
	)
	err := row.Scan(
		&d.ID,
		&d.Code,
		&d.Name,
		&kind,
		&d.Value,
		&minOrder,
		&maxDiscount,
		&limit,
		&perCustomer,
		&d.UsedCountGlobal,
		&appliesTo,
		&productIDs,
		&catIDs,
		&startsAt,
		&endsAt,
		&d.IsActive,
	)
	if err != nil {
		return nil, err
	}

	d.Kind = domain.DiscountKind(strings.ToLower(kind))
	d.Scope = domain.Scope{
		Kind:        domain.ScopeKind(strings.ToLower(appliesTo)),
		ProductIDs:  productIDs,
		CategoryIDs: catIDs,
	}
	if d.Scope.Kind == "" {
		d.Scope.Kind = domain.ScopeAll
	}
	if minOrder.Valid {
		m := domain.NewMoneyFromDecimal(minOrder.Decimal)
		d.MinimumOrderAmount = &m
	}
	if maxDiscount.Valid {
		m := domain.NewMoneyFromDecimal(maxDiscount.Decimal)
		d.MaximumDiscountAmount = &m
	}
	if limit.Valid {
		v := int(limit.Int32)
		d.UsageLimitGlobal = &v
	}
	if perCustomer.Valid {
		v := int(perCustomer.Int32)
		d.UsageLimitPerCustomer = &v
	}
	if startsAt.Valid {
		t := startsAt.Time
		d.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time
		d.EndsAt = &t
	}
	return &d, nil
}

// FindByCode matches the code case-insensitively.
func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (*domain.DiscountCode, error) {
	query := `SELECT ` + discountColumns + ` FROM discount_codes WHERE LOWER(code) = LOWER($1)`

	d, err := scanDiscountCode(r.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDiscountCodeNotFound
	}
	if err != nil {
		return nil, domain.StorageError("query discount code", err)
	}
	return d, nil
}

// unrestrictedScope matches codes that apply to every line, including
// specific_* codes stored with an empty id list.
const unrestrictedScope = `applies_to = 'all'
	OR (applies_to = 'specific_products' AND COALESCE(cardinality(applicable_product_ids), 0) = 0)
	OR (applies_to = 'specific_categories' AND COALESCE(cardinality(applicable_category_ids), 0) = 0)`

// ListActive returns active codes whose window contains now, ordered by
// start (open start first) and name.
func (r *PostgresRepository) ListActive(ctx context.Context, now time.Time, filter domain.PromotionFilter) ([]*domain.DiscountCode, error) {
	where := []string{
		"is_active = true",
		"(starts_at IS NULL OR $1 >= starts_at)",
		"(ends_at IS NULL OR $1 <= ends_at)",
	}
	args := []any{now}

	if filter.Scope == domain.PromotionScopeProduct {
		switch {
		case filter.ProductID != nil:
			where = append(where, "("+unrestrictedScope+" OR (applies_to = 'specific_products' AND $2 = ANY(applicable_product_ids)))")
			args = append(args, *filter.ProductID)
		case filter.CategoryID != nil:
			where = append(where, "("+unrestrictedScope+" OR (applies_to = 'specific_categories' AND $2 = ANY(applicable_category_ids)))")
			args = append(args, *filter.CategoryID)
		}
	}

	query := `SELECT ` + discountColumns + ` FROM discount_codes WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY starts_at NULLS FIRST, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError("query active discount codes", err)
	}
	defer rows.Close()

	var codes []*domain.DiscountCode
	for rows.Next() {
		d, err := scanDiscountCode(rows)
		if err != nil {
			return nil, domain.StorageError("scan discount code row", err)
		}
		codes = append(codes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("row iteration error", err)
	}
	return codes, nil
}

func (r *PostgresRepository) CountGlobalUses(ctx context.Context, discountCodeID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM discount_code_uses WHERE discount_code_id = $1`,
		discountCodeID).Scan(&n)
	if err != nil {
		return 0, domain.StorageError("count global uses", err)
	}
	return n, nil
}

func (r *PostgresRepository) CountCustomerUses(ctx context.Context, discountCodeID int64, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM discount_code_uses WHERE discount_code_id = $1 AND user_id = $2`,
		discountCodeID, userID).Scan(&n)
	if err != nil {
		return 0, domain.StorageError("count customer uses", err)
	}
	return n, nil
}

// Record appends a usage row and bumps used_count in one transaction. A
// second record for the same order returns domain.ErrUsageAlreadyRecorded
// and changes nothing.
func (r *PostgresRepository) Record(ctx context.Context, rec domain.UsageRecord) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("begin usage transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("rollback usage transaction", zap.Error(rbErr))
			}
		}
	}()

	usedAt := rec.UsedAt
	if usedAt.IsZero() {
		usedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO discount_code_uses (id, discount_code_id, user_id, order_id, discount_amount, used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.DiscountCodeID, rec.UserID, rec.OrderID, rec.DiscountAmount, usedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pqUniqueViolation:
				return domain.ErrUsageAlreadyRecorded
			case pqForeignKeyViolation:
				return ErrDiscountCodeNotFound
			}
		}
		return domain.StorageError("insert usage record", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE discount_codes SET used_count = used_count + 1, updated_at = NOW() WHERE id = $1`,
		rec.DiscountCodeID)
	if err != nil {
		return domain.StorageError("increment used count", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrDiscountCodeNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return domain.StorageError("commit usage transaction", err)
	}
	return nil
}

// CreateDiscountCode inserts a code and fills in its id. Codes are unique
// regardless of case.
func (r *PostgresRepository) CreateDiscountCode(ctx context.Context, d *domain.DiscountCode) error {
	var minOrder, maxDiscount decimal.NullDecimal
	if d.MinimumOrderAmount != nil {
		minOrder = decimal.NullDecimal{Decimal: d.MinimumOrderAmount.Decimal(), Valid: true}
	}
	if d.MaximumDiscountAmount != nil {
		maxDiscount = decimal.NullDecimal{Decimal: d.MaximumDiscountAmount.Decimal(), Valid: true}
	}
	scope := d.Scope.Kind
	if scope == "" {
		scope = domain.ScopeAll
	}

	query := `INSERT INTO discount_codes (code, name, type, value, minimum_order_amount, maximum_discount_amount,
	              usage_limit, usage_limit_per_customer, used_count, applies_to,
	              applicable_product_ids, applicable_category_ids, starts_at, ends_at, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	          RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		d.Code,
		d.Name,
		string(d.Kind),
		d.Value,
		minOrder,
		maxDiscount,
		nullInt(d.UsageLimitGlobal),
		nullInt(d.UsageLimitPerCustomer),
		d.UsedCountGlobal,
		string(scope),
		pq.Int64Array(d.Scope.ProductIDs),
		pq.Int64Array(d.Scope.CategoryIDs),
		nullTime(d.StartsAt),
		nullTime(d.EndsAt),
		d.IsActive,
	).Scan(&d.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateCode
		}
		return domain.StorageError("insert discount code", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
