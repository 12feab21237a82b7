package model

// Item is a product returned by the search API.
// Optional fields stay empty when the API omits them.
type Item struct {
	ASIN          string
	Title         string
	ListPrice     string
	LowestPrice   string
	ImageURL      string
	DetailURL     string
	BrowseNodeIDs []string
}

// Price returns the list price when present, otherwise the lowest offer price.
func (i Item) Price() string {
	if i.ListPrice != "" {
		return i.ListPrice
	}
	return i.LowestPrice
}

// CategoryID returns the first browse node id, or "" when the item has none.
func (i Item) CategoryID() string {
	if len(i.BrowseNodeIDs) == 0 {
		return ""
	}
	return i.BrowseNodeIDs[0]
}
