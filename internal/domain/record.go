package domain

import "encoding/json"

const (
	CollectionProfile    = "profile"
	CollectionBroadcasts = "broadcasts"
	CollectionGizmos     = "gizmos"
	CollectionPosts      = "posts"
	CollectionVotes      = "votes"
)

const (
	IndexCreatedAt       = "createdAt"
	IndexOriginCreatedAt = "origin+createdAt"
	IndexThreadRoot      = "threadRoot"
	IndexThreadParent    = "threadParent"
	IndexSubject         = "subject"
	IndexFollowURLs      = "followUrls"
)

// Inf is the type of Infinity.
type Inf struct{}

// Infinity sorts after every other key part.
var Infinity = Inf{}

// Key is an index key tuple. Parts are string, int64 or Infinity.
type Key []any

// Record is one row of a collection as the store sees it.
type Record struct {
	URL        string
	Origin     string
	Collection string
	Value      json.RawMessage
	// Indexes maps an index name to the keys the record is reachable under.
	// Multi-entry indexes hold more than one key.
	Indexes map[string][]Key
}

// RecordMeta is embedded in every loaded entity. Origin is the archive that
// authored the record.
type RecordMeta struct {
	URL    string `json:"url"`
	Origin string `json:"origin"`
}

func (m RecordMeta) Meta() RecordMeta { return m }

func (m *RecordMeta) SetMeta(url, origin string) {
	m.URL = url
	m.Origin = origin
}

// Variant selects the schema the index is opened with.
type Variant string

const (
	VariantSocial Variant = "social"
	VariantGizmo  Variant = "gizmo"
)

func (v Variant) Valid() bool {
	return v == VariantSocial || v == VariantGizmo
}

// HasCollection reports whether the variant carries the collection.
func (v Variant) HasCollection(collection string) bool {
	switch collection {
	case CollectionProfile, CollectionBroadcasts, CollectionVotes:
		return true
	case CollectionGizmos, CollectionPosts:
		return v == VariantGizmo
	}
	return false
}
