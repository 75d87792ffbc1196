package usecase

import "github.com/totegamma/concrnt-parallel/internal/domain"

// ContentQuery builds the listing query of a content collection.
//
// An author selects a range on origin+createdAt, after/before alone a range
// on createdAt, and no filter an ordered scan of createdAt. Paging options are
// applied only when supplied. Author must already be an archive url.
func ContentQuery(collection string, opts domain.ListOptions) domain.Query {
	q := domain.Query{Collection: collection}

	var lower int64
	if opts.After != nil {
		lower = *opts.After
	}
	var upper any = domain.Infinity
	if opts.Before != nil {
		upper = *opts.Before
	}

	switch {
	case opts.Author != "":
		q.Index = domain.IndexOriginCreatedAt
		q.Shape = domain.ShapeBetween
		q.Lower = domain.Key{opts.Author, lower}
		q.Upper = domain.Key{opts.Author, upper}
	case opts.After != nil || opts.Before != nil:
		q.Index = domain.IndexCreatedAt
		q.Shape = domain.ShapeBetween
		q.Lower = domain.Key{lower}
		q.Upper = domain.Key{upper}
	default:
		q.Index = domain.IndexCreatedAt
		q.Shape = domain.ShapeOrderBy
	}

	applyPage(&q, opts.PageOptions)
	return q
}

// RepliesQuery selects the broadcasts of a thread.
func RepliesQuery(threadRoot string, page domain.PageOptions) domain.Query {
	q := domain.Query{
		Collection: domain.CollectionBroadcasts,
		Index:      domain.IndexThreadRoot,
		Shape:      domain.ShapeEquals,
		Equals:     domain.Key{threadRoot},
	}
	applyPage(&q, page)
	return q
}

func VotesQuery(subject string) domain.Query {
	return domain.Query{
		Collection: domain.CollectionVotes,
		Index:      domain.IndexSubject,
		Shape:      domain.ShapeEquals,
		Equals:     domain.Key{subject},
	}
}

// FollowersQuery selects the profiles following archive.
func FollowersQuery(archive string) domain.Query {
	return domain.Query{
		Collection: domain.CollectionProfile,
		Index:      domain.IndexFollowURLs,
		Shape:      domain.ShapeEquals,
		Equals:     domain.Key{archive},
	}
}

// applyPage sets offset, limit and reverse. Non-positive offsets and limits
// count as unset.
func applyPage(q *domain.Query, page domain.PageOptions) {
	if page.Offset != nil && *page.Offset > 0 {
		q.Offset = *page.Offset
	}
	if page.Limit != nil && *page.Limit > 0 {
		q.Limit = *page.Limit
	}
	if page.Reverse != nil {
		q.Reverse = *page.Reverse
	}
}
