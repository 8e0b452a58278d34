package model

// SessionTrace summarizes one coding session.
type SessionTrace struct {
	SessionID string          `json:"sessionId"`
	Git       GitMetadata     `json:"git"`
	Metrics   SessionMetrics  `json:"metrics"`
	Timeline  []TimelineEvent `json:"timeline"`
}

// GitMetadata describes the repository the session worked in.
type GitMetadata struct {
	Repo         string        `json:"repo,omitempty"`
	Branch       string        `json:"branch,omitempty"`
	PullRequests []PullRequest `json:"pullRequests"`
}

// PullRequest links a session to a PR it opened or touched.
type PullRequest struct {
	Repo     string `json:"repo"`
	PRNumber int64  `json:"prNumber"`
	State    string `json:"state"`
}

// SessionMetrics are the rolled-up session counters.
type SessionMetrics struct {
	PromptCount   int64    `json:"promptCount"`
	ToolCallCount int64    `json:"toolCallCount"`
	TotalCostUSD  float64  `json:"totalCostUsd"`
	FilesTouched  []string `json:"filesTouched"`
}

// TimelineEvent is one entry of the session timeline.
type TimelineEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}
