package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
)

// SubscriptionUsecase keeps the subscription list embedded in a profile.
// The gizmo variant stores gizmo entries, the social variant plain urls.
type SubscriptionUsecase struct {
	*base
}

func NewSubscriptionUsecase(b *base) *SubscriptionUsecase {
	return &SubscriptionUsecase{base: b}
}

func (uc *SubscriptionUsecase) Subscribe(ctx context.Context, archive, recordURL string) error {
	return uc.SubscribeMany(ctx, archive, []string{recordURL})
}

// SubscribeMany subscribes archive to every url in one profile update.
func (uc *SubscriptionUsecase) SubscribeMany(ctx context.Context, archive string, recordURLs []string) error {
	ctx, span := tracer.Start(ctx, "Subscription.Usecase.SubscribeMany")
	defer span.End()

	archiveURL, err := uc.archiveURL("subscribe", archive)
	if err != nil {
		return err
	}

	var entries []domain.Subscription
	if uc.variant == domain.VariantGizmo {
		entries, err = uc.resolveGizmos(ctx, recordURLs)
		if err != nil {
			span.RecordError(err)
			return err
		}
	}

	changes, err := uc.updateProfile(ctx, archiveURL, func(p *domain.Profile) error {
		if uc.variant == domain.VariantGizmo {
			for _, entry := range entries {
				p.Subgizmos.Add(entry)
			}
			return nil
		}
		for _, u := range recordURLs {
			p.Subscriptions.Add(domain.SubscribedURL(strings.TrimSpace(u)))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changes == 0 {
		return domain.ErrNoProfile.With("subscribe")
	}
	return nil
}

// resolveGizmos loads each gizmo with its author name.
func (uc *SubscriptionUsecase) resolveGizmos(ctx context.Context, recordURLs []string) ([]domain.Subscription, error) {
	entries := make([]domain.Subscription, len(recordURLs))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range recordURLs {
		g.Go(func() error {
			gizmo, err := load[domain.Gizmo](gctx, uc.store, domain.CollectionGizmos, strings.TrimSpace(u))
			if err != nil {
				return fmt.Errorf("failed to subscribe to %s: %w", u, err)
			}
			author, err := uc.lookupAuthor(gctx, gizmo.Origin)
			if err != nil {
				return err
			}
			entries[i] = domain.Subscription{
				URL:    gizmo.URL,
				Origin: gizmo.Origin,
				Name:   gizmo.GizmoName,
			}
			if author != nil {
				entries[i].Author = author.Name
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Unsubscribe removes recordURL from the subscriptions of archive. It fails
// when archive has no profile or was not subscribed.
func (uc *SubscriptionUsecase) Unsubscribe(ctx context.Context, archive, recordURL string) error {
	archiveURL, err := uc.archiveURL("unsubscribe", archive)
	if err != nil {
		return err
	}
	recordURL = strings.TrimSpace(recordURL)

	errNotSubscribed := errors.New("not subscribed")
	changes, err := uc.updateProfile(ctx, archiveURL, func(p *domain.Profile) error {
		var removed bool
		if uc.variant == domain.VariantGizmo {
			removed = p.Subgizmos.Remove(recordURL)
		} else {
			removed = p.Subscriptions.Remove(recordURL)
		}
		if !removed {
			return errNotSubscribed
		}
		return nil
	})
	if errors.Is(err, errNotSubscribed) {
		return domain.ErrNoSubscription.With("unsubscribe")
	}
	if err != nil {
		return err
	}
	if changes == 0 {
		return domain.ErrNoProfile.With("unsubscribe")
	}
	return nil
}

// IsSubscribed reports whether archive subscribed to recordURL. In the social
// variant a subscription to the record's archive counts too. An archive
// without a profile has no subscriptions.
func (uc *SubscriptionUsecase) IsSubscribed(ctx context.Context, archive, recordURL string) (bool, error) {
	archiveURL, err := uc.archiveURL("check subscription", archive)
	if err != nil {
		return false, err
	}

	profile, err := uc.lookupAuthor(ctx, archiveURL)
	if err != nil || profile == nil {
		return false, err
	}

	if uc.variant == domain.VariantGizmo {
		return profile.Subgizmos.Contains(recordURL), nil
	}
	if profile.Subscriptions.Contains(recordURL) {
		return true, nil
	}
	origin, err := parallel.ArchiveURL(recordURL)
	if err != nil {
		return false, nil
	}
	return profile.Subscriptions.Contains(origin), nil
}
