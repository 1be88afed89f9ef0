package types

// TabRecord holds the last known document of a browser tab.
// Fresh is set for tabs that were opened and have not navigated since.
type TabRecord struct {
	ID    TabID  `json:"id"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	Fresh bool   `json:"fresh"`
}
