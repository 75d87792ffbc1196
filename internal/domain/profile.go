package domain

// Follow is one entry of a profile's follow list.
type Follow struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

func (f Follow) SetKey() string { return f.URL }

// Subscription is a gizmo a profile subscribed to.
type Subscription struct {
	URL    string `json:"url"`
	Origin string `json:"origin"`
	Author string `json:"author,omitempty"`
	Name   string `json:"name,omitempty"`
}

func (s Subscription) SetKey() string { return s.URL }

// SubscribedURL is a plain subscribed url (social variant).
type SubscribedURL string

func (u SubscribedURL) SetKey() string { return string(u) }

type (
	FollowSet       = OrderedSet[Follow]
	SubscriptionSet = OrderedSet[Subscription]
	URLSet          = OrderedSet[SubscribedURL]
)

type Profile struct {
	RecordMeta
	Name          string          `json:"name"`
	Bio           string          `json:"bio"`
	Avatar        string          `json:"avatar,omitempty"`
	Follows       FollowSet       `json:"follows"`
	FollowURLs    []string        `json:"followUrls"`
	Subgizmos     SubscriptionSet `json:"subgizmos"`
	Subscriptions URLSet          `json:"subscriptions"`
}

// Normalize recomputes the derived follow url list.
func (p *Profile) Normalize() {
	p.FollowURLs = p.Follows.Keys()
}

// Indexes returns the index entries of the profile record.
func (p *Profile) Indexes() map[string][]Key {
	keys := make([]Key, 0, len(p.FollowURLs))
	for _, u := range p.FollowURLs {
		keys = append(keys, Key{u})
	}
	return map[string][]Key{
		IndexFollowURLs: keys,
	}
}

// ProfileInput is a partial profile update. Nil fields are left unchanged.
type ProfileInput struct {
	Name    *string   `json:"name,omitempty"`
	Bio     *string   `json:"bio,omitempty"`
	Avatar  *string   `json:"avatar,omitempty"`
	Follows *[]Follow `json:"follows,omitempty"`
}
