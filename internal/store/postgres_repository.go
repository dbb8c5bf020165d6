/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * Compound mutations run in a single transaction and lock the prize row (then the
 * participant row) with SELECT ... FOR UPDATE, so concurrent claims never over-admit.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store/migrations"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OpenPostgres connects a pool to databaseURL and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, stmt := range migrations.Postgres() {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return NewPostgresRepository(pool), nil
}

// RegisterParticipant inserts a participant unless the id is already registered.
func (r *PostgresRepository) RegisterParticipant(ctx context.Context, id int64, displayName string) (bool, error) {
	query := `
		INSERT INTO participants (id, display_name, points, registered_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, id, displayName)
	if err != nil {
		return false, storageError("register participant", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListActiveParticipants returns every registered participant id.
func (r *PostgresRepository) ListActiveParticipants(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM participants ORDER BY id`)
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

func (r *PostgresRepository) FindParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	var p domain.Participant
	query := `
		SELECT id, display_name, points, registered_at
		FROM participants
		WHERE id = $1
	`
	if err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.DisplayName, &p.Points, &p.RegisteredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, storageError("find participant", err)
	}
	return &p, nil
}

// RegisterPrize stores a new prize with no claims.
func (r *PostgresRepository) RegisterPrize(ctx context.Context, assetRef string) (int64, error) {
	var id int64
	query := `
		INSERT INTO prizes (asset_ref, claim_count, round)
		VALUES ($1, 0, 0)
		RETURNING id
	`
	if err := r.db.QueryRow(ctx, query, assetRef).Scan(&id); err != nil {
		return 0, storageError("register prize", err)
	}
	return id, nil
}

// PickEligiblePrize selects a random prize that still has room for winners.
func (r *PostgresRepository) PickEligiblePrize(ctx context.Context) (*domain.Prize, error) {
	var p domain.Prize
	query := `
		SELECT id, asset_ref, claim_count, round, created_at
		FROM prizes
		WHERE claim_count < $1
		ORDER BY RANDOM()
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, domain.MaxWinnersPerPrize).Scan(&p.ID, &p.AssetRef, &p.ClaimCount, &p.Round, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoEligiblePrize
		}
		return nil, storageError("pick eligible prize", err)
	}
	return &p, nil
}

func (r *PostgresRepository) FindPrize(ctx context.Context, prizeID int64) (*domain.Prize, error) {
	var p domain.Prize
	query := `
		SELECT id, asset_ref, claim_count, round, created_at
		FROM prizes
		WHERE id = $1
	`
	if err := r.db.QueryRow(ctx, query, prizeID).Scan(&p.ID, &p.AssetRef, &p.ClaimCount, &p.Round, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrizeNotFound
		}
		return nil, storageError("find prize", err)
	}
	return &p, nil
}

func (r *PostgresRepository) ListPrizes(ctx context.Context) ([]domain.Prize, error) {
	rows, err := r.db.Query(ctx, `
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

func (r *PostgresRepository) GetClaimCount(ctx context.Context, prizeID int64) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT claim_count FROM prizes WHERE id = $1`, prizeID).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPrizeNotFound
		}
		return 0, storageError("get claim count", err)
	}
	return count, nil
}

func (r *PostgresRepository) GetAssetRef(ctx context.Context, prizeID int64) (string, error) {
	var ref string
	if err := r.db.QueryRow(ctx, `SELECT asset_ref FROM prizes WHERE id = $1`, prizeID).Scan(&ref); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrPrizeNotFound
		}
		return "", storageError("get asset ref", err)
	}
	return ref, nil
}

// ResetClaims re-arms a prize for a new round. Winner records of earlier rounds are kept.
func (r *PostgresRepository) ResetClaims(ctx context.Context, prizeID int64) error {
	query := `
		UPDATE prizes
		SET claim_count = 0,
		    round = round + 1
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, prizeID)
	if err != nil {
		return storageError("reset claims", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrizeNotFound
	}
	return nil
}

// TryClaim performs an atomic claim operation on a prize.
func (r *PostgresRepository) TryClaim(ctx context.Context, prizeID, participantID int64) (domain.ClaimReceipt, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.ClaimReceipt{}, storageError("begin claim", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the prize row
	var (
		claimCount int
		round      int
		assetRef   string
	)
	query := `
		SELECT claim_count, round, asset_ref
		FROM prizes
		WHERE id = $1
		FOR UPDATE
	`
	if err := tx.QueryRow(ctx, query, prizeID).Scan(&claimCount, &round, &assetRef); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClaimReceipt{Result: domain.ClaimResultPrizeNotFound}, nil
		}
		return domain.ClaimReceipt{}, storageError("lock prize", err)
	}

	// 2. Lock the participant row, always after the prize row
	var participantExists int64
	if err := tx.QueryRow(ctx, `SELECT id FROM participants WHERE id = $1 FOR UPDATE`, participantID).Scan(&participantExists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClaimReceipt{Result: domain.ClaimResultParticipantNotFound}, nil
		}
		return domain.ClaimReceipt{}, storageError("lock participant", err)
	}

	if claimCount >= domain.MaxWinnersPerPrize {
		return domain.ClaimReceipt{Result: domain.ClaimResultExhausted}, nil
	}

	// 3. Reject a second win of the same prize
	var held int
	claimCheckQuery := `
		SELECT COUNT(*)
		FROM winners
		WHERE participant_id = $1 AND prize_id = $2
	`
	if err := tx.QueryRow(ctx, claimCheckQuery, participantID, prizeID).Scan(&held); err != nil {
		return domain.ClaimReceipt{}, storageError("check existing claim", err)
	}
	if held > 0 {
		return domain.ClaimReceipt{Result: domain.ClaimResultAlreadyClaimed}, nil
	}

	// 4. Admit
	if _, err := tx.Exec(ctx, `UPDATE prizes SET claim_count = claim_count + 1 WHERE id = $1`, prizeID); err != nil {
		return domain.ClaimReceipt{}, storageError("increment claim count", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE participants SET points = points + 1 WHERE id = $1`, participantID); err != nil {
		return domain.ClaimReceipt{}, storageError("credit points", err)
	}
	insertWinnerQuery := `
		INSERT INTO winners (participant_id, prize_id, round, claimed_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := tx.Exec(ctx, insertWinnerQuery, participantID, prizeID, round); err != nil {
		return domain.ClaimReceipt{}, storageError("insert winner record", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ClaimReceipt{}, storageError("commit claim", err)
	}

	return domain.ClaimReceipt{
		Result:     domain.ClaimResultWon,
		AssetRef:   assetRef,
		Round:      round,
		ClaimCount: claimCount + 1,
	}, nil
}

func (r *PostgresRepository) ListWinnerRecords(ctx context.Context, participantID int64) ([]domain.WinnerRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT participant_id, prize_id, round, claimed_at
		FROM winners
		WHERE participant_id = $1
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

// TopParticipants ranks participants by points, ties broken by ascending id.
func (r *PostgresRepository) TopParticipants(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	query := `
		SELECT id, display_name, points
		FROM participants
		ORDER BY points DESC, id ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, n)
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

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	if r.db != nil {
		r.db.Close()
	}
	return nil
}
