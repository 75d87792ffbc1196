package domain

import "fmt"

// Enrichment lists the enrichment stages a read may request.
type Enrichment struct {
	FetchAuthor            bool   `json:"fetchAuthor,omitempty"`
	CountVotes             bool   `json:"countVotes,omitempty"`
	FetchReplies           bool   `json:"fetchReplies,omitempty"`
	CheckIfSubscribed      bool   `json:"checkIfSubscribed,omitempty"`
	Requester              string `json:"requester,omitempty"`
	FetchGizmo             bool   `json:"fetchGizmo,omitempty"`
	FetchGizmoDependencies bool   `json:"fetchGizmoDependencies,omitempty"`
	FetchAllDependencies   bool   `json:"fetchAllDependencies,omitempty"`
	FetchPostDependencies  bool   `json:"fetchPostDependencies,omitempty"`
}

type enrichmentFlag struct {
	name string
	set  func(Enrichment) bool
}

var enrichmentFlags = []enrichmentFlag{
	{"fetchAuthor", func(e Enrichment) bool { return e.FetchAuthor }},
	{"countVotes", func(e Enrichment) bool { return e.CountVotes }},
	{"fetchReplies", func(e Enrichment) bool { return e.FetchReplies }},
	{"checkIfSubscribed", func(e Enrichment) bool { return e.CheckIfSubscribed }},
	{"fetchGizmo", func(e Enrichment) bool { return e.FetchGizmo }},
	{"fetchGizmoDependencies", func(e Enrichment) bool { return e.FetchGizmoDependencies }},
	{"fetchAllDependencies", func(e Enrichment) bool { return e.FetchAllDependencies }},
	{"fetchPostDependencies", func(e Enrichment) bool { return e.FetchPostDependencies }},
}

var supportedFlags = map[string]map[string]bool{
	CollectionBroadcasts: {
		"fetchAuthor": true, "countVotes": true, "fetchReplies": true, "checkIfSubscribed": true,
	},
	CollectionGizmos: {
		"fetchAuthor": true, "countVotes": true, "fetchReplies": true, "checkIfSubscribed": true,
		"fetchGizmoDependencies": true, "fetchAllDependencies": true,
	},
	CollectionPosts: {
		"fetchAuthor": true, "countVotes": true, "fetchReplies": true,
		"fetchGizmo": true, "fetchPostDependencies": true,
	},
}

// Flags returns the names of the requested stages.
func (e Enrichment) Flags() []string {
	var out []string
	for _, f := range enrichmentFlags {
		if f.set(e) {
			out = append(out, f.name)
		}
	}
	return out
}

// Validate checks the request against what the collection supports.
func (e Enrichment) Validate(collection string) error {
	op := "enrich " + collection
	supported := supportedFlags[collection]
	for _, name := range e.Flags() {
		if !supported[name] {
			return fmt.Errorf("%w: %s", ErrUnsupportedFlag.With(op), name)
		}
	}
	// fetchGizmo resolves the gizmo with a subscription check.
	if (e.CheckIfSubscribed || e.FetchGizmo) && e.Requester == "" {
		return ErrRequesterRequired.With(op)
	}
	return nil
}

type ListBroadcastsRequest struct {
	ListOptions
	Enrichment
}

type ListGizmosRequest struct {
	ListOptions
	Enrichment
	// Subscriber keeps only gizmos the given archive subscribed to.
	Subscriber string `json:"subscriber,omitempty"`
	// LoadShop keeps only gizmos authored by Author.
	LoadShop bool `json:"loadShop,omitempty"`
}

type ListPostsRequest struct {
	ListOptions
	Enrichment
	// CurrentURL keeps only posts whose postHTTP matches.
	CurrentURL string `json:"currentURL,omitempty"`
}
