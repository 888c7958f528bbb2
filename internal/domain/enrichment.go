package domain

// EnrichmentRecord is one result row returned by the scraping service.
// Numeric fields are pointers so "absent" and "zero" stay distinguishable.
type EnrichmentRecord struct {
	InputURL       string   `json:"inputUrl"`
	ID             string   `json:"id"`
	ShortCode      string   `json:"shortCode"`
	OwnerUsername  string   `json:"ownerUsername"`
	OwnerFullName  string   `json:"ownerFullName,omitempty"`
	VideoPlayCount *int64   `json:"videoPlayCount,omitempty"`
	LikesCount     *int64   `json:"likesCount,omitempty"`
	CommentsCount  *int64   `json:"commentsCount,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"`
	VideoDuration  *float64 `json:"videoDuration,omitempty"`
	Error          string   `json:"error,omitempty"`
	ErrorDesc      string   `json:"errorDescription,omitempty"`
}

// HasError reports whether the service flagged this item as failed.
func (r *EnrichmentRecord) HasError() bool {
	return r != nil && r.Error != ""
}

// HasViews reports whether the view-count field is present.
func (r *EnrichmentRecord) HasViews() bool {
	return r != nil && r.VideoPlayCount != nil
}

// Views returns the view count, treating absent as 0.
func (r *EnrichmentRecord) Views() int64 {
	if r == nil || r.VideoPlayCount == nil {
		return 0
	}
	return *r.VideoPlayCount
}

// IsValid is the orchestrator's partition rule: no error flag and views present.
func (r *EnrichmentRecord) IsValid() bool {
	return !r.HasError() && r.HasViews()
}

// Int64 returns a pointer to v. Handy for building records in tests and fakes.
func Int64(v int64) *int64 {
	return &v
}
