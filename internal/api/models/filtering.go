package models

// DomainListResponse contains a list of domains.
type DomainListResponse struct {
	Domains []string `json:"domains"`
	Count   int      `json:"count"`
}

// DomainRequest is used to add/remove domains from lists.
type DomainRequest struct {
	Domains []string `json:"domains" binding:"required,min=1"`
}

// FilterListResponse contains the user's custom filter patterns.
type FilterListResponse struct {
	Filters []string `json:"filters"`
	Count   int      `json:"count"`
}

// FilterRequest is used to add/remove custom filter patterns.
type FilterRequest struct {
	Filters []string `json:"filters" binding:"required,min=1"`
}

// ListChangeResponse reports how many entries a list mutation changed.
type ListChangeResponse struct {
	Status  string `json:"status"`
	Changed int    `json:"changed"`
}

// FilteringEnabledRequest toggles filtering on/off.
type FilteringEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// CheckRequest asks for a dry-run verdict on a URL.
type CheckRequest struct {
	URL  string `json:"url" binding:"required"`
	Type string `json:"type"`
}

// CosmeticResponse maps domains ("*" for generic rules) to hidden selectors.
type CosmeticResponse struct {
	Cosmetic map[string][]string `json:"cosmetic"`
}
