package domain

// Dependency references another gizmo.
type Dependency struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

type Broadcast struct {
	RecordMeta
	Text         string `json:"text"`
	ThreadRoot   string `json:"threadRoot,omitempty"`
	ThreadParent string `json:"threadParent,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
	ReceivedAt   int64  `json:"receivedAt"`
}

func (b *Broadcast) Indexes() map[string][]Key {
	idx := timeIndexes(b.Origin, b.CreatedAt)
	if b.ThreadRoot != "" {
		idx[IndexThreadRoot] = []Key{{b.ThreadRoot}}
	}
	if b.ThreadParent != "" {
		idx[IndexThreadParent] = []Key{{b.ThreadParent}}
	}
	return idx
}

type Gizmo struct {
	RecordMeta
	GizmoName         string       `json:"gizmoName"`
	GizmoDescription  string       `json:"gizmoDescription,omitempty"`
	GizmoDocs         string       `json:"gizmoDocs,omitempty"`
	GizmoDependencies []Dependency `json:"gizmoDependencies"`
	PostDependencies  []Dependency `json:"postDependencies"`
	GizmoJS           string       `json:"gizmoJS,omitempty"`
	GizmoCSS          string       `json:"gizmoCSS,omitempty"`
	PostJS            string       `json:"postJS,omitempty"`
	PostCSS           string       `json:"postCSS,omitempty"`
	CreatedAt         int64        `json:"createdAt"`
	ReceivedAt        int64        `json:"receivedAt"`
}

func (g *Gizmo) Indexes() map[string][]Key {
	return timeIndexes(g.Origin, g.CreatedAt)
}

type Post struct {
	RecordMeta
	PostParams string `json:"postParams,omitempty"`
	PostHTTP   string `json:"postHTTP,omitempty"`
	PostText   string `json:"postText,omitempty"`
	GizmoURL   string `json:"gizmoURL"`
	CreatedAt  int64  `json:"createdAt"`
	ReceivedAt int64  `json:"receivedAt"`
}

func (p *Post) Indexes() map[string][]Key {
	return timeIndexes(p.Origin, p.CreatedAt)
}

func timeIndexes(origin string, createdAt int64) map[string][]Key {
	return map[string][]Key{
		IndexCreatedAt:       {{createdAt}},
		IndexOriginCreatedAt: {{origin, createdAt}},
	}
}

type BroadcastInput struct {
	Text         string `json:"text"`
	ThreadRoot   string `json:"threadRoot,omitempty"`
	ThreadParent string `json:"threadParent,omitempty"`
}

type GizmoInput struct {
	GizmoName         string   `json:"gizmoName"`
	GizmoDescription  string   `json:"gizmoDescription,omitempty"`
	GizmoDocs         string   `json:"gizmoDocs,omitempty"`
	GizmoDependencies []string `json:"gizmoDependencies,omitempty"`
	PostDependencies  []string `json:"postDependencies,omitempty"`
	GizmoJS           string   `json:"gizmoJS,omitempty"`
	GizmoCSS          string   `json:"gizmoCSS,omitempty"`
	PostJS            string   `json:"postJS,omitempty"`
	PostCSS           string   `json:"postCSS,omitempty"`
}

type PostInput struct {
	PostParams string `json:"postParams,omitempty"`
	PostHTTP   string `json:"postHTTP,omitempty"`
	PostText   string `json:"postText,omitempty"`
	GizmoURL   string `json:"gizmoURL"`
}
