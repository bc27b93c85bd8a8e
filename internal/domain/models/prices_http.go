package models

// Requests for price HTTP endpoints.

type CurrentPriceRequest struct {
	Part   string `query:"part" json:"part" validate:"required"`
	Region string `query:"region" json:"region" default:"전국"`
	Grade  string `query:"grade" json:"grade" default:"00" validate:"gradecode"`
}

type WeeklyTrendRequest struct {
	Part   string `query:"part" json:"part" validate:"required"`
	Region string `query:"region" json:"region" default:"전국"`
	Grade  string `query:"grade" json:"grade" default:"00" validate:"gradecode"`
	Weeks  int    `query:"weeks" json:"weeks" default:"8" validate:"gte=1,lte=52"`
}

type DashboardRequest struct {
	Parts  string `query:"parts" json:"parts" default:"Beef_Ribeye,Beef_Brisket,Pork_Belly,Pork_Neck"`
	Region string `query:"region" json:"region" default:"전국"`
}

type HistoryRequest struct {
	Part   string `query:"part" json:"part" validate:"required"`
	Region string `query:"region" json:"region" default:"전국"`
	Grade  string `query:"grade" json:"grade" default:"00" validate:"gradecode"`
	Days   int    `query:"days" json:"days" default:"30" validate:"gte=1,lte=365"`
}

// PartsResponse lists what the price endpoints accept.
type PartsResponse struct {
	Parts   any      `json:"parts"`
	Regions []string `json:"regions"`
	Unit    string   `json:"unit"`
}
