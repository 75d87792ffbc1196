package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

var avatarExt = regexp.MustCompile(`^[a-z0-9]+$`)

type ProfileUsecase struct {
	*base
}

func NewProfileUsecase(b *base) *ProfileUsecase {
	return &ProfileUsecase{base: b}
}

func (uc *ProfileUsecase) GetProfile(ctx context.Context, archive string) (*domain.Profile, error) {
	archiveURL, err := uc.archiveURL("get profile", archive)
	if err != nil {
		return nil, err
	}
	return uc.getProfile(ctx, archiveURL)
}

// SetProfile creates the profile of archive or updates the supplied fields.
func (uc *ProfileUsecase) SetProfile(ctx context.Context, archive string, input domain.ProfileInput) error {
	archiveURL, err := uc.archiveURL("set profile", archive)
	if err != nil {
		return err
	}

	profile, err := uc.getProfile(ctx, archiveURL)
	if errors.Is(err, domain.ErrNotFound) {
		profile = &domain.Profile{}
		profile.SetMeta(profileURL(archiveURL), archiveURL)
	} else if err != nil {
		return err
	}

	if input.Name != nil {
		profile.Name = strings.TrimSpace(*input.Name)
	}
	if input.Bio != nil {
		profile.Bio = *input.Bio
	}
	if input.Avatar != nil {
		profile.Avatar = *input.Avatar
	}
	if input.Follows != nil {
		var follows domain.FollowSet
		for _, f := range *input.Follows {
			target, err := uc.archiveURL("set profile", f.URL)
			if err != nil {
				return err
			}
			follows.Add(domain.Follow{URL: target, Name: f.Name})
		}
		profile.Follows = follows
	}
	profile.Normalize()

	return uc.put(ctx, domain.CollectionProfile, profile)
}

// SetAvatar writes avatar.<ext> into the archive, commits it and points the
// profile at it.
func (uc *ProfileUsecase) SetAvatar(ctx context.Context, archive string, data []byte, ext string) error {
	ctx, span := tracer.Start(ctx, "Profile.Usecase.SetAvatar")
	defer span.End()

	archiveURL, err := uc.archiveURL("set avatar", archive)
	if err != nil {
		return err
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if !avatarExt.MatchString(ext) {
		return domain.PreconditionError{Op: "set avatar", Reason: fmt.Sprintf("invalid file extension %q", ext)}
	}
	name := "avatar." + ext

	if uc.files != nil {
		if err := uc.files.WriteFile(ctx, archiveURL, name, data); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		if err := uc.files.Commit(ctx, archiveURL); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to commit %s: %w", name, err)
		}
	}

	return uc.SetProfile(ctx, archiveURL, domain.ProfileInput{Avatar: &name})
}
