package parallel

type Endpoint struct {
	Template string    `json:"template"`
	Method   string    `json:"method"`
	Query    *[]string `json:"query,omitempty"`
}

// WellKnown describes an index node and the endpoints it serves.
type WellKnown struct {
	Version   string              `json:"version"`
	Domain    string              `json:"domain"`
	Owner     string              `json:"owner,omitempty"`
	Variant   string              `json:"variant"`
	Endpoints map[string]Endpoint `json:"endpoints"`
}
