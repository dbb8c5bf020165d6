package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteRepository is the single-file store used by default.
// It holds exactly one connection so every transaction is serialized.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range migrations.SQLite() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) RegisterParticipant(ctx context.Context, id int64, displayName string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO participants (id, display_name, points, registered_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (id) DO NOTHING
	`, id, displayName, r.now())
	if err != nil {
		return false, storageError("register participant", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageError("register participant", err)
	}
	return affected == 1, nil
}

func (r *SQLiteRepository) ListActiveParticipants(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM participants ORDER BY id`)
	if err != nil {
		return nil, storageError("list participants", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageError("list participants", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list participants", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) FindParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	var p domain.Participant
	err := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, points, registered_at
		FROM participants
		WHERE id = ?
	`, id).Scan(&p.ID, &p.DisplayName, &p.Points, &p.RegisteredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, storageError("find participant", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) RegisterPrize(ctx context.Context, assetRef string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO prizes (asset_ref, claim_count, round, created_at)
		VALUES (?, 0, 0, ?)
	`, assetRef, r.now())
	if err != nil {
		return 0, storageError("register prize", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageError("register prize", err)
	}
	return id, nil
}

func (r *SQLiteRepository) PickEligiblePrize(ctx context.Context) (*domain.Prize, error) {
	var p domain.Prize
	err := r.db.QueryRowContext(ctx, `
		SELECT id, asset_ref, claim_count, round, created_at
		FROM prizes
		WHERE claim_count < ?
		ORDER BY RANDOM()
		LIMIT 1
	`, domain.MaxWinnersPerPrize).Scan(&p.ID, &p.AssetRef, &p.ClaimCount, &p.Round, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoEligiblePrize
		}
		return nil, storageError("pick eligible prize", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) FindPrize(ctx context.Context, prizeID int64) (*domain.Prize, error) {
	var p domain.Prize
	err := r.db.QueryRowContext(ctx, `
		SELECT id, asset_ref, claim_count, round, created_at
		FROM prizes
		WHERE id = ?
	`, prizeID).Scan(&p.ID, &p.AssetRef, &p.ClaimCount, &p.Round, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrizeNotFound
		}
		return nil, storageError("find prize", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) ListPrizes(ctx context.Context) ([]domain.Prize, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, asset_ref, claim_count, round, created_at
		FROM prizes
		ORDER BY id
	`)
	if err != nil {
		return nil, storageError("list prizes", err)
	}
	defer rows.Close()

	prizes := make([]domain.Prize, 0)
	for rows.Next() {
		var p domain.Prize
		if err := rows.Scan(&p.ID, &p.AssetRef, &p.ClaimCount, &p.Round, &p.CreatedAt); err != nil {
			return nil, storageError("list prizes", err)
		}
		prizes = append(prizes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list prizes", err)
	}
	return prizes, nil
}

func (r *SQLiteRepository) GetClaimCount(ctx context.Context, prizeID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT claim_count FROM prizes WHERE id = ?`, prizeID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrPrizeNotFound
		}
		return 0, storageError("get claim count", err)
	}
	return count, nil
}

func (r *SQLiteRepository) GetAssetRef(ctx context.Context, prizeID int64) (string, error) {
	var ref string
	err := r.db.QueryRowContext(ctx, `SELECT asset_ref FROM prizes WHERE id = ?`, prizeID).Scan(&ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrPrizeNotFound
		}
		return "", storageError("get asset ref", err)
	}
	return ref, nil
}

func (r *SQLiteRepository) ResetClaims(ctx context.Context, prizeID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE prizes
		SET claim_count = 0,
		    round = round + 1
		WHERE id = ?
	`, prizeID)
	if err != nil {
		return storageError("reset claims", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageError("reset claims", err)
	}
	if affected == 0 {
		return ErrPrizeNotFound
	}
	return nil
}

// TryClaim checks capacity and admits the claim inside one transaction.
func (r *SQLiteRepository) TryClaim(ctx context.Context, prizeID, participantID int64) (domain.ClaimReceipt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ClaimReceipt{}, storageError("begin claim", err)
	}
	defer tx.Rollback()

	var (
		claimCount int
		round      int
		assetRef   string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT claim_count, round, asset_ref
		FROM prizes
		WHERE id = ?
	`, prizeID).Scan(&claimCount, &round, &assetRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ClaimReceipt{Result: domain.ClaimResultPrizeNotFound}, nil
		}
		return domain.ClaimReceipt{}, storageError("load prize for claim", err)
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM participants WHERE id = ?`, participantID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ClaimReceipt{Result: domain.ClaimResultParticipantNotFound}, nil
		}
		return domain.ClaimReceipt{}, storageError("load participant for claim", err)
	}

	if claimCount >= domain.MaxWinnersPerPrize {
		return domain.ClaimReceipt{Result: domain.ClaimResultExhausted}, nil
	}

	var held int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM winners
		WHERE participant_id = ? AND prize_id = ?
	`, participantID, prizeID).Scan(&held)
	if err != nil {
		return domain.ClaimReceipt{}, storageError("check existing claim", err)
	}
	if held > 0 {
		return domain.ClaimReceipt{Result: domain.ClaimResultAlreadyClaimed}, nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE prizes
		SET claim_count = claim_count + 1
		WHERE id = ? AND claim_count < ?
	`, prizeID, domain.MaxWinnersPerPrize)
	if err != nil {
		return domain.ClaimReceipt{}, storageError("increment claim count", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return domain.ClaimReceipt{}, storageError("increment claim count", err)
	} else if affected == 0 {
		return domain.ClaimReceipt{Result: domain.ClaimResultExhausted}, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE participants SET points = points + 1 WHERE id = ?`, participantID); err != nil {
		return domain.ClaimReceipt{}, storageError("credit points", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO winners (participant_id, prize_id, round, claimed_at)
		VALUES (?, ?, ?, ?)
	`, participantID, prizeID, round, r.now()); err != nil {
		return domain.ClaimReceipt{}, storageError("insert winner record", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ClaimReceipt{}, storageError("commit claim", err)
	}

	return domain.ClaimReceipt{
		Result:     domain.ClaimResultWon,
		AssetRef:   assetRef,
		Round:      round,
		ClaimCount: claimCount + 1,
	}, nil
}

func (r *SQLiteRepository) ListWinnerRecords(ctx context.Context, participantID int64) ([]domain.WinnerRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT participant_id, prize_id, round, claimed_at
		FROM winners
		WHERE participant_id = ?
		ORDER BY claimed_at, prize_id
	`, participantID)
	if err != nil {
		return nil, storageError("list winner records", err)
	}
	defer rows.Close()

	records := make([]domain.WinnerRecord, 0)
	for rows.Next() {
		var w domain.WinnerRecord
		if err := rows.Scan(&w.ParticipantID, &w.PrizeID, &w.Round, &w.ClaimedAt); err != nil {
			return nil, storageError("list winner records", err)
		}
		records = append(records, w)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list winner records", err)
	}
	return records, nil
}

func (r *SQLiteRepository) TopParticipants(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, points
		FROM participants
		ORDER BY points DESC, id ASC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, storageError("top participants", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0, min(n, maxPrealloc))
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.ParticipantID, &e.DisplayName, &e.Points); err != nil {
			return nil, storageError("top participants", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("top participants", err)
	}
	return entries, nil
}

// Close releases the SQLite connection.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
