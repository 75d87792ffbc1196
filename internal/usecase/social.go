package usecase

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

// SocialUsecase maintains follows and answers follower and friend queries.
type SocialUsecase struct {
	*base
	scope *ScopeUsecase
}

func NewSocialUsecase(b *base, scope *ScopeUsecase) *SocialUsecase {
	return &SocialUsecase{base: b, scope: scope}
}

// Follow adds target to the follows of archive and brings it into scope.
// Following twice keeps one entry. archive must have a profile.
func (uc *SocialUsecase) Follow(ctx context.Context, archive, target, name string) error {
	ctx, span := tracer.Start(ctx, "Social.Usecase.Follow")
	defer span.End()

	archiveURL, err := uc.archiveURL("follow", archive)
	if err != nil {
		return err
	}
	targetURL, err := uc.archiveURL("follow", target)
	if err != nil {
		return err
	}

	changes, err := uc.updateProfile(ctx, archiveURL, func(p *domain.Profile) error {
		p.Follows.Add(domain.Follow{URL: targetURL, Name: name})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if changes == 0 {
		return domain.ErrNoProfile.With("follow")
	}

	return uc.scope.AddArchive(ctx, targetURL)
}

// Unfollow removes target from the follows of archive and drops it from
// scope, even when other followed archives still reference it.
func (uc *SocialUsecase) Unfollow(ctx context.Context, archive, target string) error {
	ctx, span := tracer.Start(ctx, "Social.Usecase.Unfollow")
	defer span.End()

	archiveURL, err := uc.archiveURL("unfollow", archive)
	if err != nil {
		return err
	}
	targetURL, err := uc.archiveURL("unfollow", target)
	if err != nil {
		return err
	}

	changes, err := uc.updateProfile(ctx, archiveURL, func(p *domain.Profile) error {
		p.Follows.Remove(targetURL)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if changes == 0 {
		return domain.ErrNoProfile.With("unfollow")
	}

	return uc.scope.RemoveArchive(ctx, targetURL)
}

// ListFollowers returns the profiles that follow archive.
func (uc *SocialUsecase) ListFollowers(ctx context.Context, archive string) ([]*domain.Profile, error) {
	archiveURL, err := uc.archiveURL("list followers", archive)
	if err != nil {
		return nil, err
	}

	records, err := uc.store.Find(ctx, FollowersQuery(archiveURL))
	if err != nil {
		return nil, err
	}

	profiles := make([]*domain.Profile, 0, len(records))
	for _, record := range records {
		profile, err := decode[domain.Profile](record)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func (uc *SocialUsecase) CountFollowers(ctx context.Context, archive string) (int, error) {
	archiveURL, err := uc.archiveURL("count followers", archive)
	if err != nil {
		return 0, err
	}
	return uc.store.Count(ctx, FollowersQuery(archiveURL))
}

// IsFollowing reports whether a follows b. An archive without a profile
// follows nobody.
func (uc *SocialUsecase) IsFollowing(ctx context.Context, a, b string) (bool, error) {
	aURL, err := uc.archiveURL("check follow", a)
	if err != nil {
		return false, err
	}
	bURL, err := uc.archiveURL("check follow", b)
	if err != nil {
		return false, err
	}

	profile, err := uc.lookupAuthor(ctx, aURL)
	if err != nil || profile == nil {
		return false, err
	}
	for _, u := range profile.FollowURLs {
		if u == bURL {
			return true, nil
		}
	}
	return false, nil
}

// IsFriendsWith reports whether a and b follow each other.
func (uc *SocialUsecase) IsFriendsWith(ctx context.Context, a, b string) (bool, error) {
	var ab, ba bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ab, err = uc.IsFollowing(gctx, a, b)
		return err
	})
	g.Go(func() (err error) {
		ba, err = uc.IsFollowing(gctx, b, a)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	return ab && ba, nil
}

// ListFriends returns the followers of archive that archive follows back,
// in follower order.
func (uc *SocialUsecase) ListFriends(ctx context.Context, archive string) ([]*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Social.Usecase.ListFriends")
	defer span.End()

	followers, err := uc.ListFollowers(ctx, archive)
	if err != nil {
		return nil, err
	}

	mutual := make([]bool, len(followers))
	g, gctx := errgroup.WithContext(ctx)
	for i, follower := range followers {
		g.Go(func() (err error) {
			mutual[i], err = uc.IsFollowing(gctx, archive, follower.Origin)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}

	friends := make([]*domain.Profile, 0, len(followers))
	for i, follower := range followers {
		if mutual[i] {
			friends = append(friends, follower)
		}
	}
	return friends, nil
}

func (uc *SocialUsecase) CountFriends(ctx context.Context, archive string) (int, error) {
	friends, err := uc.ListFriends(ctx, archive)
	if err != nil {
		return 0, err
	}
	return len(friends), nil
}

// followedArchives returns the archives owner follows, or nil when owner has
// no profile yet.
func (uc *SocialUsecase) followedArchives(ctx context.Context, owner string) ([]string, error) {
	profile, err := uc.lookupAuthor(ctx, owner)
	if err != nil || profile == nil {
		return nil, err
	}
	return profile.FollowURLs, nil
}
