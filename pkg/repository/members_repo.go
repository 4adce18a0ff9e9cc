package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// MembersRepository persists member documents and the renewal audit trail.
type MembersRepository struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewMembersRepository creates a new members repository.
func NewMembersRepository(db *sql.DB) *MembersRepository {
	return &MembersRepository{db: db, tracer: tracer()}
}

// GetMember retrieves a member document by id.
func (r *MembersRepository) GetMember(ctx context.Context, memberID string) (member *domain.Member, err error) {
	ctx, span := r.tracer.Start(ctx, "members.get",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer func() { finish(span, err) }()

	return r.getTx(ctx, r.db, memberID)
}

func (r *MembersRepository) getTx(ctx context.Context, q Querier, memberID string) (*domain.Member, error) {
	var doc []byte
	err := q.QueryRowContext(ctx, `SELECT doc FROM members WHERE id = $1`, memberID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return decodeMember(memberID, doc)
}

// PutMember upserts a member document.
func (r *MembersRepository) PutMember(ctx context.Context, member *domain.Member) error {
	return r.putTx(ctx, r.db, member)
}

func (r *MembersRepository) putTx(ctx context.Context, q Querier, member *domain.Member) error {
	if err := member.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("encode member: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO members (id, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`, member.ID, doc, member.UpdatedAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// CommitRenewal upserts the member document and inserts the renewal record
// in one transaction.
func (r *MembersRepository) CommitRenewal(ctx context.Context, member *domain.Member, record *domain.RenewalRecord) (err error) {
	ctx, span := r.tracer.Start(ctx, "members.commit_renewal",
		trace.WithAttributes(
			attribute.String("member.id", member.ID),
			attribute.String("renewal.id", record.ID.String()),
			attribute.String("renewal.plan", string(record.PlanKind)),
		),
	)
	defer func() { finish(span, err) }()

	if err := record.Validate(); err != nil {
		return err
	}
	recordDoc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode renewal: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := r.putTx(ctx, tx, member); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO renewals (id, member_id, doc, created_at)
		VALUES ($1, $2, $3, $4)
	`, record.ID, record.MemberID, recordDoc, record.Timestamp)
	if err != nil {
		return unavailable(fmt.Errorf("insert renewal: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return unavailable(fmt.Errorf("commit transaction: %w", err))
	}
	span.SetAttributes(attribute.Bool("commit.success", true))
	return nil
}

// ListRenewals returns a member's renewals, newest first.
func (r *MembersRepository) ListRenewals(ctx context.Context, memberID string) (records []*domain.RenewalRecord, err error) {
	ctx, span := r.tracer.Start(ctx, "members.list_renewals",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer func() { finish(span, err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT doc FROM renewals
		WHERE member_id = $1
		ORDER BY created_at DESC
	`, memberID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, unavailable(err)
		}
		rec := &domain.RenewalRecord{}
		if err := json.Unmarshal(doc, rec); err != nil {
			return nil, fmt.Errorf("%w: renewal: %w", domain.ErrInvalidRecord, err)
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: renewal %s: %w", domain.ErrInvalidRecord, rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	span.SetAttributes(attribute.Int("renewals.loaded", len(records)))
	return records, nil
}

// ExpireLapsed clears the active flag of every period expired at now.
func (r *MembersRepository) ExpireLapsed(ctx context.Context, now time.Time) (n int, err error) {
	ctx, span := r.tracer.Start(ctx, "members.expire_lapsed")
	defer func() { finish(span, err) }()

	res, err := r.db.ExecContext(ctx, `
		UPDATE members
		SET doc = jsonb_set(doc, '{membership,active}', 'false'::jsonb), updated_at = $1
		WHERE (doc->'membership'->>'active')::boolean IS TRUE
		  AND (doc->'membership'->>'expiration_date')::timestamptz <= $1
	`, now)
	if err != nil {
		return 0, unavailable(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	span.SetAttributes(attribute.Int64("members.expired", affected))
	return int(affected), nil
}

// decodeMember parses a stored document. Missing or malformed fields are
// errors; only an absent role list is defaulted.
func decodeMember(memberID string, doc []byte) (*domain.Member, error) {
	m := &domain.Member{}
	if err := json.Unmarshal(doc, m); err != nil {
		return nil, fmt.Errorf("%w: member %s: %w", domain.ErrInvalidRecord, memberID, err)
	}
	if m.ID == "" {
		m.ID = memberID
	}
	if len(m.Roles) == 0 {
		m.Roles = append([]domain.Role(nil), domain.DefaultRoles...)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: member %s: %w", domain.ErrInvalidRecord, memberID, err)
	}
	return m, nil
}
