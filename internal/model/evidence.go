package model

// EvidenceItem is a single search result used as grounding context.
// Order is whatever the search API returned; items are not deduplicated.
type EvidenceItem struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}
