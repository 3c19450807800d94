package conversation

// HistoryEntry is one turn side in provider wire shape: a role and its
// text, ready to be fed back into a completion request.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
