package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
	"github.com/prizedrop/prize-service/pkg/artwork"
)

var ErrEmptyCollection = errors.New("participant has not won any prizes")

// AssetLibrary is the image storage the prize catalogue needs.
type AssetLibrary interface {
	Store(name string, r io.Reader) (string, error)
	List() ([]string, error)
	OriginalPath(assetRef string) (string, error)
	Composite(ctx context.Context, tiles []artwork.Tile) ([]byte, error)
}

// PrizeService manages the prize catalogue: uploads, seeding and collections.
type PrizeService struct {
	repo    store.Repository
	library AssetLibrary
	logger  *slog.Logger
}

func NewPrizeService(repo store.Repository, library AssetLibrary, logger *slog.Logger) *PrizeService {
	return &PrizeService{repo: repo, library: library, logger: logger}
}

// Upload stores the image and registers it as a new prize.
func (s *PrizeService) Upload(ctx context.Context, name string, r io.Reader) (*domain.Prize, error) {
	assetRef, err := s.library.Store(name, r)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	prizeID, err := s.repo.RegisterPrize(ctx, assetRef)
	if err != nil {
		return nil, fmt.Errorf("register prize %s: %w", assetRef, err)
	}
	s.logger.Info("prize uploaded", "prize_id", prizeID, "asset_ref", assetRef)
	return s.repo.FindPrize(ctx, prizeID)
}

// SeedFromLibrary registers every image in the originals directory that is not yet a prize.
func (s *PrizeService) SeedFromLibrary(ctx context.Context) (int, error) {
	refs, err := s.library.List()
	if err != nil {
		return 0, fmt.Errorf("list assets: %w", err)
	}
	existing, err := s.repo.ListPrizes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list prizes: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		known[p.AssetRef] = struct{}{}
	}

	added := 0
	for _, ref := range refs {
		if _, ok := known[ref]; ok {
			continue
		}
		prizeID, err := s.repo.RegisterPrize(ctx, ref)
		if err != nil {
			return added, fmt.Errorf("register prize %s: %w", ref, err)
		}
		s.logger.Info("prize seeded", "prize_id", prizeID, "asset_ref", ref)
		added++
	}
	return added, nil
}

func (s *PrizeService) List(ctx context.Context) ([]domain.Prize, error) {
	return s.repo.ListPrizes(ctx)
}

// OriginalPath resolves the unhidden image of a won prize.
func (s *PrizeService) OriginalPath(assetRef string) (string, error) {
	return s.library.OriginalPath(assetRef)
}

// Collection renders every prize as a grid, revealing the ones the participant has won.
// Prizes whose image is missing on disk are left out.
func (s *PrizeService) Collection(ctx context.Context, participantID int64) ([]byte, error) {
	if _, err := s.repo.FindParticipant(ctx, participantID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListWinnerRecords(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("list winner records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyCollection
	}
	won := make(map[int64]struct{}, len(records))
	for _, r := range records {
		won[r.PrizeID] = struct{}{}
	}

	prizes, err := s.repo.ListPrizes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prizes: %w", err)
	}
	tiles := make([]artwork.Tile, 0, len(prizes))
	for _, p := range prizes {
		if _, err := s.library.OriginalPath(p.AssetRef); err != nil {
			s.logger.Warn("skipping prize without image", "prize_id", p.ID, "asset_ref", p.AssetRef, "error", err)
			continue
		}
		_, revealed := won[p.ID]
		tiles = append(tiles, artwork.Tile{AssetRef: p.AssetRef, Revealed: revealed})
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("render collection: %w", domain.ErrAssetMissing)
	}
	return s.library.Composite(ctx, tiles)
}
