package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so every query can run
// either standalone or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the hand-written query set for the escrow schema.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set scoped to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// ToPgUUID converts a google/uuid UUID to the pgtype representation.
func ToPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// ToPgUUIDPtr converts an optional UUID; nil maps to SQL NULL.
func ToPgUUIDPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return ToPgUUID(*id)
}

// FromPgUUID converts back to a google/uuid UUID. Invalid values map to uuid.Nil.
func FromPgUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

// FromPgUUIDPtr converts an optional pgtype UUID; NULL maps to nil.
func FromPgUUIDPtr(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	out := uuid.UUID(id.Bytes)
	return &out
}

// ---- escrow accounts ----

type EscrowAccountRow struct {
	ID            pgtype.UUID
	OwnerID       pgtype.UUID
	Balance       int64
	FrozenBalance int64
	Version       int64
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

const escrowAccountColumns = `id, owner_id, balance, frozen_balance, version, created_at, updated_at`

func scanEscrowAccount(row pgx.Row) (EscrowAccountRow, error) {
	var a EscrowAccountRow
	err := row.Scan(&a.ID, &a.OwnerID, &a.Balance, &a.FrozenBalance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

type CreateEscrowAccountParams struct {
	ID      pgtype.UUID
	OwnerID pgtype.UUID
	Balance int64
}

func (q *Queries) CreateEscrowAccount(ctx context.Context, arg CreateEscrowAccountParams) (EscrowAccountRow, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO escrow_accounts (id, owner_id, balance, frozen_balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 1, NOW(), NOW())
		RETURNING `+escrowAccountColumns,
		arg.ID, arg.OwnerID, arg.Balance)
	return scanEscrowAccount(row)
}

func (q *Queries) GetEscrowAccount(ctx context.Context, id pgtype.UUID) (EscrowAccountRow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+escrowAccountColumns+` FROM escrow_accounts WHERE id = $1`, id)
	return scanEscrowAccount(row)
}

func (q *Queries) GetEscrowAccountByOwner(ctx context.Context, ownerID pgtype.UUID) (EscrowAccountRow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+escrowAccountColumns+` FROM escrow_accounts WHERE owner_id = $1`, ownerID)
	return scanEscrowAccount(row)
}

// GetEscrowAccountForUpdate locks the account row for the duration of the
// enclosing transaction.
func (q *Queries) GetEscrowAccountForUpdate(ctx context.Context, id pgtype.UUID) (EscrowAccountRow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+escrowAccountColumns+` FROM escrow_accounts WHERE id = $1 FOR UPDATE`, id)
	return scanEscrowAccount(row)
}

type HoldAccountFundsParams struct {
	Amount int64
	ID     pgtype.UUID
}

// HoldAccountFunds freezes captured funds: frozen_balance += amount.
func (q *Queries) HoldAccountFunds(ctx context.Context, arg HoldAccountFundsParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE escrow_accounts
		SET frozen_balance = frozen_balance + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2`,
		arg.Amount, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type ReleaseAccountFundsParams struct {
	Amount int64
	ID     pgtype.UUID
}

// ReleaseAccountFunds moves amount from frozen to available. The
// frozen_balance guard makes a double release affect zero rows.
func (q *Queries) ReleaseAccountFunds(ctx context.Context, arg ReleaseAccountFundsParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE escrow_accounts
		SET balance = balance + $1, frozen_balance = frozen_balance - $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND frozen_balance >= $1`,
		arg.Amount, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type RefundAccountFundsParams struct {
	Amount int64
	ID     pgtype.UUID
}

// RefundAccountFunds drops a hold without crediting the available balance.
func (q *Queries) RefundAccountFunds(ctx context.Context, arg RefundAccountFundsParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE escrow_accounts
		SET frozen_balance = frozen_balance - $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND frozen_balance >= $1`,
		arg.Amount, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ---- escrow transactions ----

type EscrowTransactionRow struct {
	ID               pgtype.UUID
	EscrowAccountID  pgtype.UUID
	Amount           int64
	FeeAmount        int64
	TotalAmount      int64
	Type             string
	Purpose          string
	Status           string
	Description      string
	ReferenceID      string
	PayeeID          pgtype.UUID
	PropertyID       pgtype.UUID
	ReleaseCondition string
	AutoRelease      bool
	ReleaseDue       pgtype.Timestamptz
	EvidenceURLs     []string
	HeldAt           pgtype.Timestamptz
	CreatedAt        pgtype.Timestamptz
	UpdatedAt        pgtype.Timestamptz
}

const escrowTransactionColumns = `id, escrow_account_id, amount, fee_amount, total_amount, type, purpose, status,
	description, reference_id, payee_id, property_id, release_condition, auto_release, release_due,
	evidence_urls, held_at, created_at, updated_at`

func scanEscrowTransaction(row pgx.Row) (EscrowTransactionRow, error) {
	var t EscrowTransactionRow
	err := row.Scan(
		&t.ID, &t.EscrowAccountID, &t.Amount, &t.FeeAmount, &t.TotalAmount, &t.Type, &t.Purpose, &t.Status,
		&t.Description, &t.ReferenceID, &t.PayeeID, &t.PropertyID, &t.ReleaseCondition, &t.AutoRelease, &t.ReleaseDue,
		&t.EvidenceURLs, &t.HeldAt, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

type CreateEscrowTransactionParams struct {
	ID               pgtype.UUID
	EscrowAccountID  pgtype.UUID
	Amount           int64
	FeeAmount        int64
	TotalAmount      int64
	Type             string
	Purpose          string
	Status           string
	Description      string
	ReferenceID      string
	PayeeID          pgtype.UUID
	PropertyID       pgtype.UUID
	ReleaseCondition string
	AutoRelease      bool
}

func (q *Queries) CreateEscrowTransaction(ctx context.Context, arg CreateEscrowTransactionParams) (EscrowTransactionRow, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO escrow_transactions (
			id, escrow_account_id, amount, fee_amount, total_amount, type, purpose, status,
			description, reference_id, payee_id, property_id, release_condition, auto_release,
			evidence_urls, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, '{}', NOW(), NOW())
		RETURNING `+escrowTransactionColumns,
		arg.ID, arg.EscrowAccountID, arg.Amount, arg.FeeAmount, arg.TotalAmount, arg.Type, arg.Purpose, arg.Status,
		arg.Description, arg.ReferenceID, arg.PayeeID, arg.PropertyID, arg.ReleaseCondition, arg.AutoRelease)
	return scanEscrowTransaction(row)
}

func (q *Queries) GetEscrowTransaction(ctx context.Context, id pgtype.UUID) (EscrowTransactionRow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+escrowTransactionColumns+` FROM escrow_transactions WHERE id = $1`, id)
	return scanEscrowTransaction(row)
}

// GetEscrowTransactionByReference supports reference-id idempotency checks.
func (q *Queries) GetEscrowTransactionByReference(ctx context.Context, referenceID string) (EscrowTransactionRow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+escrowTransactionColumns+` FROM escrow_transactions WHERE reference_id = $1`, referenceID)
	return scanEscrowTransaction(row)
}

func (q *Queries) GetEscrowTransactionForUpdate(ctx context.Context, id pgtype.UUID) (EscrowTransactionRow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+escrowTransactionColumns+` FROM escrow_transactions WHERE id = $1 FOR UPDATE`, id)
	return scanEscrowTransaction(row)
}

func (q *Queries) GetTransactionStatusForUpdate(ctx context.Context, id pgtype.UUID) (string, error) {
	var status string
	err := q.db.QueryRow(ctx, `SELECT status FROM escrow_transactions WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	return status, err
}

type UpdateTransactionStatusParams struct {
	Status string
	ID     pgtype.UUID
}

func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE escrow_transactions SET status = $1, updated_at = NOW() WHERE id = $2`,
		arg.Status, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type AppendTransactionDescriptionParams struct {
	Note string
	ID   pgtype.UUID
}

// AppendTransactionDescription appends a human-supplied note, e.g. the
// release reason, to the transaction description.
func (q *Queries) AppendTransactionDescription(ctx context.Context, arg AppendTransactionDescriptionParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE escrow_transactions
		SET description = TRIM(BOTH ' ' FROM description || ' ' || $1), updated_at = NOW()
		WHERE id = $2`,
		arg.Note, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type MarkTransactionHeldParams struct {
	HeldAt     pgtype.Timestamptz
	ReleaseDue pgtype.Timestamptz
	ID         pgtype.UUID
}

func (q *Queries) MarkTransactionHeld(ctx context.Context, arg MarkTransactionHeldParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE escrow_transactions SET held_at = $1, release_due = $2, updated_at = NOW() WHERE id = $3`,
		arg.HeldAt, arg.ReleaseDue, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type AppendEvidenceURLParams struct {
	URL string
	ID  pgtype.UUID
}

func (q *Queries) AppendEvidenceURL(ctx context.Context, arg AppendEvidenceURLParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE escrow_transactions
		SET evidence_urls = array_append(evidence_urls, $1), updated_at = NOW()
		WHERE id = $2`,
		arg.URL, arg.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListPendingTransactionsForUpdate locks every PENDING row for the account so
// the cleanup sweep can transition them without racing the webhook.
func (q *Queries) ListPendingTransactionsForUpdate(ctx context.Context, accountID pgtype.UUID) ([]EscrowTransactionRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+escrowTransactionColumns+`
		FROM escrow_transactions
		WHERE escrow_account_id = $1 AND status = 'PENDING'
		ORDER BY created_at
		FOR UPDATE`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

type ListTransactionsByAccountParams struct {
	EscrowAccountID pgtype.UUID
	Limit           int32
	Offset          int32
}

func (q *Queries) ListTransactionsByAccount(ctx context.Context, arg ListTransactionsByAccountParams) ([]EscrowTransactionRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+escrowTransactionColumns+`
		FROM escrow_transactions
		WHERE escrow_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		arg.EscrowAccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

type ListAutoReleaseDueParams struct {
	Now   pgtype.Timestamptz
	Limit int32
}

// ListAutoReleaseDue claims HELD transactions past their release deadline.
// SKIP LOCKED keeps concurrent worker instances from fighting over rows.
func (q *Queries) ListAutoReleaseDue(ctx context.Context, arg ListAutoReleaseDueParams) ([]EscrowTransactionRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+escrowTransactionColumns+`
		FROM escrow_transactions
		WHERE status = 'HELD' AND auto_release AND release_due IS NOT NULL AND release_due <= $1
		ORDER BY release_due
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]EscrowTransactionRow, error) {
	var out []EscrowTransactionRow
	for rows.Next() {
		t, err := scanEscrowTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- escrow rules ----

type EscrowRuleRow struct {
	ID               pgtype.UUID
	TransactionType  string
	ReleaseCondition string
	ReleaseDays      int32
	AutoRelease      bool
	FeePercent       string
	CreatedAt        pgtype.Timestamptz
	UpdatedAt        pgtype.Timestamptz
}

const escrowRuleColumns = `id, transaction_type, release_condition, release_days, auto_release, fee_percent::text, created_at, updated_at`

func scanEscrowRule(row pgx.Row) (EscrowRuleRow, error) {
	var r EscrowRuleRow
	err := row.Scan(&r.ID, &r.TransactionType, &r.ReleaseCondition, &r.ReleaseDays, &r.AutoRelease, &r.FeePercent, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// GetEscrowRuleByType matches rules case-insensitively on transaction_type.
func (q *Queries) GetEscrowRuleByType(ctx context.Context, transactionType string) (EscrowRuleRow, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+escrowRuleColumns+`
		FROM escrow_rules
		WHERE LOWER(transaction_type) = LOWER($1)`,
		transactionType)
	return scanEscrowRule(row)
}

func (q *Queries) ListEscrowRules(ctx context.Context) ([]EscrowRuleRow, error) {
	rows, err := q.db.Query(ctx, `SELECT `+escrowRuleColumns+` FROM escrow_rules ORDER BY transaction_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EscrowRuleRow
	for rows.Next() {
		r, err := scanEscrowRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type UpsertEscrowRuleParams struct {
	ID               pgtype.UUID
	TransactionType  string
	ReleaseCondition string
	ReleaseDays      int32
	AutoRelease      bool
	FeePercent       string
}

func (q *Queries) UpsertEscrowRule(ctx context.Context, arg UpsertEscrowRuleParams) (EscrowRuleRow, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO escrow_rules (id, transaction_type, release_condition, release_days, auto_release, fee_percent, created_at, updated_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6::numeric, NOW(), NOW())
		ON CONFLICT (transaction_type) DO UPDATE
		SET release_condition = EXCLUDED.release_condition,
			release_days = EXCLUDED.release_days,
			auto_release = EXCLUDED.auto_release,
			fee_percent = EXCLUDED.fee_percent,
			updated_at = NOW()
		RETURNING `+escrowRuleColumns,
		arg.ID, arg.TransactionType, arg.ReleaseCondition, arg.ReleaseDays, arg.AutoRelease, arg.FeePercent)
	return scanEscrowRule(row)
}

// ---- service charges ----

type ServiceChargeRow struct {
	ID             pgtype.UUID
	AccountID      pgtype.UUID
	Amount         int64
	Description    string
	NextDueDate    pgtype.Timestamptz
	IntervalMonths int32
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

const serviceChargeColumns = `id, account_id, amount, description, next_due_date, interval_months, created_at, updated_at`

func scanServiceCharge(row pgx.Row) (ServiceChargeRow, error) {
	var c ServiceChargeRow
	err := row.Scan(&c.ID, &c.AccountID, &c.Amount, &c.Description, &c.NextDueDate, &c.IntervalMonths, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

type CreateServiceChargeParams struct {
	ID             pgtype.UUID
	AccountID      pgtype.UUID
	Amount         int64
	Description    string
	NextDueDate    pgtype.Timestamptz
	IntervalMonths int32
}

func (q *Queries) CreateServiceCharge(ctx context.Context, arg CreateServiceChargeParams) (ServiceChargeRow, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO service_charges (id, account_id, amount, description, next_due_date, interval_months, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+serviceChargeColumns,
		arg.ID, arg.AccountID, arg.Amount, arg.Description, arg.NextDueDate, arg.IntervalMonths)
	return scanServiceCharge(row)
}

type ListUpcomingChargesParams struct {
	AccountID pgtype.UUID
	Limit     int32
}

func (q *Queries) ListUpcomingCharges(ctx context.Context, arg ListUpcomingChargesParams) ([]ServiceChargeRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+serviceChargeColumns+`
		FROM service_charges
		WHERE account_id = $1
		ORDER BY next_due_date
		LIMIT $2`,
		arg.AccountID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ServiceChargeRow
	for rows.Next() {
		c, err := scanServiceCharge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- audit log ----

type InsertAuditLogParams struct {
	EntityType string
	EntityID   pgtype.UUID
	ActorID    pgtype.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id`,
		arg.EntityType, arg.EntityID, arg.ActorID, arg.Action, arg.PrevState, arg.NextState, arg.Metadata).Scan(&id)
	return id, err
}

// ---- reconciliation ----

type FrozenImbalanceRow struct {
	AccountID     pgtype.UUID
	FrozenBalance int64
	HeldTotal     int64
}

// GetFrozenImbalances returns accounts whose frozen balance diverges from the
// sum of their HELD transaction amounts.
func (q *Queries) GetFrozenImbalances(ctx context.Context) ([]FrozenImbalanceRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT a.id, a.frozen_balance, COALESCE(SUM(t.amount) FILTER (WHERE t.status = 'HELD'), 0) AS held_total
		FROM escrow_accounts a
		LEFT JOIN escrow_transactions t ON t.escrow_account_id = a.id
		GROUP BY a.id, a.frozen_balance
		HAVING a.frozen_balance <> COALESCE(SUM(t.amount) FILTER (WHERE t.status = 'HELD'), 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FrozenImbalanceRow
	for rows.Next() {
		var r FrozenImbalanceRow
		if err := rows.Scan(&r.AccountID, &r.FrozenBalance, &r.HeldTotal); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type FrozenNetRow struct {
	TotalFrozen int64
	TotalHeld   int64
}

func (q *Queries) GetFrozenNet(ctx context.Context) (FrozenNetRow, error) {
	var r FrozenNetRow
	err := q.db.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(frozen_balance), 0) FROM escrow_accounts),
			(SELECT COALESCE(SUM(amount), 0) FROM escrow_transactions WHERE status = 'HELD')`,
	).Scan(&r.TotalFrozen, &r.TotalHeld)
	return r, err
}

// ---- idempotency keys ----

type IdempotencyKeyRow struct {
	IdempotencyKey string
	RequestHash    string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
}

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKeyRow, error) {
	var r IdempotencyKeyRow
	err := q.db.QueryRow(ctx, `
		SELECT idempotency_key, request_hash, COALESCE(response_status, 0), COALESCE(response_body, ''::bytea), COALESCE(content_type, ''), in_progress
		FROM idempotency_keys
		WHERE idempotency_key = $1`,
		key).Scan(&r.IdempotencyKey, &r.RequestHash, &r.ResponseStatus, &r.ResponseBody, &r.ContentType, &r.InProgress)
	return r, err
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

// ReserveIdempotencyKey claims a key for in-flight processing. Returns
// pgx.ErrNoRows when another request already holds it.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (string, error) {
	var key string
	err := q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, created_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key`,
		arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path).Scan(&key)
	return key, err
}

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKeyRow, error) {
	var r IdempotencyKeyRow
	err := q.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5
		RETURNING idempotency_key, request_hash, response_status, response_body, content_type, in_progress`,
		arg.ResponseStatus, arg.ResponseBody, arg.ContentType, arg.IdempotencyKey, arg.RequestHash,
	).Scan(&r.IdempotencyKey, &r.RequestHash, &r.ResponseStatus, &r.ResponseBody, &r.ContentType, &r.InProgress)
	return r, err
}
