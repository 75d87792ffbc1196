package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

// ScopeUsecase manages which archives are materialized in the index.
type ScopeUsecase struct {
	*base
}

func NewScopeUsecase(b *base) *ScopeUsecase {
	return &ScopeUsecase{base: b}
}

// AddArchive brings an archive into the index. Adding an archive twice is a
// no-op.
func (uc *ScopeUsecase) AddArchive(ctx context.Context, ref string) error {
	archive, err := uc.archiveURL("add archive", ref)
	if err != nil {
		return err
	}
	if err := uc.store.AddArchive(ctx, archive); err != nil {
		return fmt.Errorf("failed to add archive %s: %w", archive, err)
	}
	uc.publish(ctx, domain.EventArchiveAdd, archive, "", archive)
	return nil
}

func (uc *ScopeUsecase) AddArchives(ctx context.Context, refs []string) error {
	for _, ref := range refs {
		if err := uc.AddArchive(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

// RemoveArchive drops an archive and every record it authored.
func (uc *ScopeUsecase) RemoveArchive(ctx context.Context, ref string) error {
	archive, err := uc.archiveURL("remove archive", ref)
	if err != nil {
		return err
	}
	if err := uc.store.RemoveArchive(ctx, archive); err != nil {
		return fmt.Errorf("failed to remove archive %s: %w", archive, err)
	}
	uc.publish(ctx, domain.EventArchiveRemove, archive, "", archive)
	return nil
}

func (uc *ScopeUsecase) ListArchives(ctx context.Context) ([]string, error) {
	return uc.store.ListArchives(ctx)
}

// PruneUnfollowedArchives removes every archive that is neither owner nor
// followed by owner. The owner must have a profile.
func (uc *ScopeUsecase) PruneUnfollowedArchives(ctx context.Context, owner string) error {
	ctx, span := tracer.Start(ctx, "Scope.Usecase.PruneUnfollowedArchives")
	defer span.End()

	ownerURL, err := uc.archiveURL("prune archives", owner)
	if err != nil {
		return err
	}

	profile, err := uc.getProfile(ctx, ownerURL)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to prune archives of %s: %w", ownerURL, err)
	}

	keep := map[string]bool{ownerURL: true}
	for _, u := range profile.FollowURLs {
		keep[u] = true
	}

	archives, err := uc.store.ListArchives(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, archive := range archives {
		if keep[archive] {
			continue
		}
		g.Go(func() error {
			uc.logger.DebugContext(gctx, "pruning archive",
				slog.String("module", "scope"),
				slog.String("archive", archive),
			)
			return uc.RemoveArchive(gctx, archive)
		})
	}
	return g.Wait()
}
