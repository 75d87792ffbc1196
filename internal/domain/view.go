package domain

type BroadcastView struct {
	Broadcast
	Author       *Profile         `json:"author,omitempty"`
	Votes        *VoteTally       `json:"votes,omitempty"`
	Replies      []*BroadcastView `json:"replies,omitempty"`
	IsSubscribed *bool            `json:"isSubscribed,omitempty"`
}

type GizmoView struct {
	Gizmo
	Author       *Profile         `json:"author,omitempty"`
	Votes        *VoteTally       `json:"votes,omitempty"`
	Replies      []*BroadcastView `json:"replies,omitempty"`
	IsSubscribed *bool            `json:"isSubscribed,omitempty"`
	// FullDependencies holds the directly referenced gizmos.
	FullDependencies []*GizmoView `json:"fullDependencies,omitempty"`
	// ChildDependencies is the resolved dependency tree keyed by sibling index.
	ChildDependencies map[int]*GizmoView `json:"childDependencies,omitempty"`
	// Cyclic marks a dependency that is already on the resolution path. Its
	// subtree is not expanded.
	Cyclic bool `json:"cyclic,omitempty"`
	// Missing marks a dependency whose record is not in the index.
	Missing bool `json:"missing,omitempty"`
}

type PostView struct {
	Post
	Author           *Profile         `json:"author,omitempty"`
	Votes            *VoteTally       `json:"votes,omitempty"`
	Replies          []*BroadcastView `json:"replies,omitempty"`
	Gizmo            *GizmoView       `json:"gizmo,omitempty"`
	PostDependencies []*GizmoView     `json:"postDependencies,omitempty"`
}
