package usecase

import (
	"context"
	"net/url"
	"strings"

	"github.com/totegamma/concrnt-parallel"
	"github.com/totegamma/concrnt-parallel/internal/domain"
)

type VoteUsecase struct {
	*base
}

func NewVoteUsecase(b *base) *VoteUsecase {
	return &VoteUsecase{base: b}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Vote records the vote of archive on a subject, replacing an earlier vote
// of the same archive. It returns the vote record url.
func (uc *VoteUsecase) Vote(ctx context.Context, archive string, input domain.VoteInput) (string, error) {
	archiveURL, err := uc.archiveURL("vote", archive)
	if err != nil {
		return "", err
	}

	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return "", domain.ErrSubjectRequired.With("vote")
	}

	// the subject is the record key, one vote per subject and archive
	recordURL := parallel.RecordURL(archiveURL, domain.CollectionVotes, url.PathEscape(subject))
	vote := &domain.Vote{
		RecordMeta: domain.RecordMeta{URL: recordURL, Origin: archiveURL},
		Subject:    subject,
		Vote:       sign(input.Vote),
		CreatedAt:  uc.now().UnixMilli(),
	}

	if err := uc.put(ctx, domain.CollectionVotes, vote); err != nil {
		return "", err
	}
	return recordURL, nil
}

func (uc *VoteUsecase) ListVotes(ctx context.Context, subject string) ([]*domain.Vote, error) {
	records, err := uc.store.Find(ctx, VotesQuery(strings.TrimSpace(subject)))
	if err != nil {
		return nil, err
	}

	votes := make([]*domain.Vote, 0, len(records))
	for _, record := range records {
		vote, err := decode[domain.Vote](record)
		if err != nil {
			return nil, err
		}
		votes = append(votes, vote)
	}
	return votes, nil
}

// CountVotes tallies the votes on subject. A subject without votes yields the
// zero tally.
func (uc *VoteUsecase) CountVotes(ctx context.Context, subject string) (*domain.VoteTally, error) {
	tally := &domain.VoteTally{UpVoters: []string{}}
	err := uc.store.Each(ctx, VotesQuery(strings.TrimSpace(subject)), func(record domain.Record) error {
		vote, err := decode[domain.Vote](record)
		if err != nil {
			return err
		}
		tally.Add(vote, uc.owner)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tally, nil
}
