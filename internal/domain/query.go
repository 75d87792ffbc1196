package domain

// QueryShape is one of the three plans the collection store executes.
type QueryShape int

const (
	ShapeOrderBy QueryShape = iota
	ShapeBetween
	ShapeEquals
)

func (s QueryShape) String() string {
	switch s {
	case ShapeOrderBy:
		return "orderBy"
	case ShapeBetween:
		return "between"
	case ShapeEquals:
		return "equals"
	default:
		return "unknown"
	}
}

// Query is a concrete plan against one index of one collection.
//
// Between ranges include Lower and exclude Upper. Offset and Limit are applied
// in iteration order, after Reverse; zero means unset.
type Query struct {
	Collection string
	Index      string
	Shape      QueryShape
	Equals     Key
	Lower      Key
	Upper      Key
	Offset     int
	Limit      int
	Reverse    bool
}

// PageOptions are the post-filters shared by every query shape.
type PageOptions struct {
	Offset  *int  `json:"offset,omitempty"`
	Limit   *int  `json:"limit,omitempty"`
	Reverse *bool `json:"reverse,omitempty"`
}

// ListOptions is the filter set accepted by content listings.
type ListOptions struct {
	Author string `json:"author,omitempty"`
	After  *int64 `json:"after,omitempty"`
	Before *int64 `json:"before,omitempty"`
	PageOptions
}
