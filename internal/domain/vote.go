package domain

type Vote struct {
	RecordMeta
	Subject   string `json:"subject"`
	Vote      int    `json:"vote"`
	CreatedAt int64  `json:"createdAt"`
}

func (v *Vote) Indexes() map[string][]Key {
	return map[string][]Key{
		IndexSubject: {{v.Subject}},
	}
}

type VoteInput struct {
	Subject string `json:"subject"`
	Vote    int    `json:"vote"`
}

// VoteTally summarizes the votes on one subject.
//
// Down is decremented for every downvote, so it is zero or negative.
// Consumers rely on that polarity.
type VoteTally struct {
	Up               int      `json:"up"`
	Down             int      `json:"down"`
	Value            int      `json:"value"`
	UpVoters         []string `json:"upVoters"`
	CurrentUsersVote int      `json:"currentUsersVote"`
}

// Add folds one vote into the tally. owner is the archive the index is bound
// to, or empty.
func (t *VoteTally) Add(v *Vote, owner string) {
	t.Value += v.Vote
	switch v.Vote {
	case 1:
		t.Up++
		t.UpVoters = append(t.UpVoters, v.Origin)
	case -1:
		t.Down--
	}
	if owner != "" && v.Origin == owner {
		t.CurrentUsersVote = v.Vote
	}
}
