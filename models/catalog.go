package models

// WatchProvider is a streaming service offering a title in a region.
type WatchProvider struct {
	ProviderID   int    `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	LogoPath     string `json:"logo_path,omitempty"`
}

// WatchProviders lists where a title can be watched in one region.
type WatchProviders struct {
	Link     string          `json:"link,omitempty"`
	Flatrate []WatchProvider `json:"flatrate,omitempty"`
	Rent     []WatchProvider `json:"rent,omitempty"`
	Buy      []WatchProvider `json:"buy,omitempty"`
}

// CastMember is a credited actor.
type CastMember struct {
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
}

// CatalogDetails is the detail record of a single catalog title.
type CatalogDetails struct {
	Item           RadarItem       `json:"item"`
	Language       string          `json:"language"` // locale the record was served in
	Genres         []string        `json:"genres,omitempty"`
	Runtime        int             `json:"runtime,omitempty"` // minutes
	VoteAverage    float64         `json:"voteAverage,omitempty"`
	Cast           []CastMember    `json:"cast,omitempty"`
	WatchProviders *WatchProviders `json:"watchProviders,omitempty"`
}
