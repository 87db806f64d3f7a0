package github

import "time"

// Webhook payload types, trimmed to the fields the ingester reads.

type WebhookPayload struct {
	Action      string       `json:"action"`
	Issue       *Issue       `json:"issue"`
	PullRequest *PullRequest `json:"pull_request"`
	Repository  Repository   `json:"repository"`
}

type Issue struct {
	ID        int64   `json:"id"`
	Number    int     `json:"number"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	State     string  `json:"state"`
	HTMLURL   string  `json:"html_url"`
	User      Account `json:"user"`
	Labels    []Label `json:"labels"`
	UpdatedAt string  `json:"updated_at"`
}

// LabelNames flattens the label objects to their names.
func (i *Issue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, label := range i.Labels {
		if label.Name != "" {
			names = append(names, label.Name)
		}
	}
	return names
}

type PullRequest struct {
	ID        int64      `json:"id"`
	Merged    bool       `json:"merged"`
	MergedAt  *time.Time `json:"merged_at"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
}

type Repository struct {
	FullName string `json:"full_name"`
}

type Account struct {
	Login string `json:"login"`
}

type Label struct {
	Name string `json:"name"`
}
