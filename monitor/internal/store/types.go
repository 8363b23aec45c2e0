package store

// ChangeRecord is one detected regulatory change.
type ChangeRecord struct {
	ChangeID    string `json:"change_id"`
	SourceID    string `json:"source_id"`
	SourceName  string `json:"source_name,omitempty"`
	Title       string `json:"title"`
	ContentURL  string `json:"content_url"`
	Description string `json:"description,omitempty"`
	Impact      string `json:"impact"`
	PublishedAt int64  `json:"published_at,omitempty"` // Unix ms, 0 when unknown
	DetectedAt  int64  `json:"detected_at"`            // Unix ms
}

// CheckLogEntry is one completed check of a source.
type CheckLogEntry struct {
	ID          string `json:"id"`
	SourceID    string `json:"source_id"`
	Status      string `json:"status"` // ok | unchanged | error
	StatusCode  int    `json:"status_code,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
	NewChanges  int    `json:"new_changes"`
	Duplicates  int    `json:"duplicates"`
	DurationMs  int64  `json:"duration_ms"`
	CheckedAt   int64  `json:"checked_at"` // Unix ms
}
