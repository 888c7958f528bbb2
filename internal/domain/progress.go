package domain

// ProgressState is the campaign progress persisted in the progress channel's name.
type ProgressState struct {
	CampaignName string `json:"campaign_name"`
	CurrentViews int64  `json:"current_views"`
	TargetViews  int64  `json:"target_views"`
}

// ProgressSettings is what can be recovered from a rendered name.
type ProgressSettings struct {
	CampaignName string `json:"campaign_name"`
	Target       int64  `json:"target"`
}
