// Package reply builds the messages sent back through the LINE reply API.
//
// Field order and presence in the structs below mirror the Flex Message
// layout the bot has always sent, so the marshalled JSON stays stable.
package reply

import (
	"fmt"

	"shopbot/internal/model"
)

const (
	// MaxCards is the number of bubbles a search reply carries at most.
	MaxCards = 3

	AltText     = "This is a Flex Message"
	ButtonLabel = "Amazon商品ページへ"
	RankColor   = "#ff5551"

	// PricePlaceholder is shown when an item has neither a list nor an offer price.
	PricePlaceholder = "-"
)

// Message is one entry of a reply request's messages array. It has the
// method set of messaging_api.MessageInterface, so values go straight into
// the SDK's request types.
type Message interface {
	GetType() string
}

// Flex is a Flex Message wrapping a carousel.
type Flex struct {
	Type     string   `json:"type"`
	AltText  string   `json:"altText"`
	Contents Carousel `json:"contents"`
}

func (Flex) GetType() string { return "flex" }

// Text is a plain text message.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (Text) GetType() string { return "text" }

// Carousel holds the bubbles of a Flex carousel, shown left to right.
type Carousel struct {
	Type     string   `json:"type"`
	Contents []Bubble `json:"contents"`
}

// Bubble is one product card: hero image, rank/title/price body, link footer.
type Bubble struct {
	Type   string `json:"type"`
	Hero   Image  `json:"hero"`
	Body   Box    `json:"body"`
	Footer Box    `json:"footer"`
}

// Image is the hero picture of a bubble.
type Image struct {
	Type        string `json:"type"`
	Size        string `json:"size"`
	AspectRatio string `json:"aspectRatio"`
	AspectMode  string `json:"aspectMode"`
	URL         string `json:"url"`
}

// Component is anything a Box can contain.
type Component interface {
	component()
}

// Box lays out components vertically or on a baseline.
type Box struct {
	Type     string      `json:"type"`
	Layout   string      `json:"layout"`
	Spacing  string      `json:"spacing,omitempty"`
	Contents []Component `json:"contents"`
}

// TextComponent is a text element. Flex is a pointer so that an explicit
// "flex": 0 is kept while omitted values stay absent.
type TextComponent struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Wrap   bool   `json:"wrap"`
	Margin string `json:"margin,omitempty"`
	Color  string `json:"color,omitempty"`
	Weight string `json:"weight,omitempty"`
	Size   string `json:"size,omitempty"`
	Flex   *int   `json:"flex,omitempty"`
}

// Button opens its URIAction when tapped.
type Button struct {
	Type   string    `json:"type"`
	Style  string    `json:"style"`
	Action URIAction `json:"action"`
}

// URIAction links a button to a URL.
type URIAction struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	URI   string `json:"uri"`
}

func (Box) component()           {}
func (TextComponent) component() {}
func (Button) component()        {}

func flex(n int) *int { return &n }

// RankLabel renders a 1-based rank, e.g. "1位".
func RankLabel(rank int) string {
	return fmt.Sprintf("%d位", rank)
}

// BuildCard renders one item as a bubble. detailURL is the link the button
// opens; callers pass the shortened URL when one is available.
func BuildCard(item model.Item, rank int, detailURL string) Bubble {
	price := item.Price()
	if price == "" {
		price = PricePlaceholder
	}

	return Bubble{
		Type: "bubble",
		Hero: Image{
			Type:        "image",
			Size:        "full",
			AspectRatio: "20:13",
			AspectMode:  "cover",
			URL:         item.ImageURL,
		},
		Body: Box{
			Type:    "box",
			Layout:  "vertical",
			Spacing: "sm",
			Contents: []Component{
				TextComponent{Type: "text", Text: RankLabel(rank), Wrap: true, Margin: "md", Color: RankColor, Flex: flex(0)},
				TextComponent{Type: "text", Text: item.Title, Wrap: true, Weight: "bold", Size: "lg"},
				Box{
					Type:   "box",
					Layout: "baseline",
					Contents: []Component{
						TextComponent{Type: "text", Text: price, Wrap: true, Weight: "bold", Flex: flex(0)},
					},
				},
			},
		},
		Footer: Box{
			Type:    "box",
			Layout:  "vertical",
			Spacing: "sm",
			Contents: []Component{
				Button{
					Type:  "button",
					Style: "primary",
					Action: URIAction{
						Type:  "uri",
						Label: ButtonLabel,
						URI:   detailURL,
					},
				},
			},
		},
	}
}

// BuildCarousel wraps up to MaxCards bubbles in a Flex carousel message.
// Extra bubbles are dropped.
func BuildCarousel(cards []Bubble) Flex {
	if len(cards) > MaxCards {
		cards = cards[:MaxCards]
	}
	return Flex{
		Type:    "flex",
		AltText: AltText,
		Contents: Carousel{
			Type:     "carousel",
			Contents: cards,
		},
	}
}

// NoResults is the reply sent when a keyword matches nothing.
func NoResults(keyword string) Text {
	return Text{
		Type: "text",
		Text: fmt.Sprintf("「%s」に一致する商品が見つかりませんでした。", keyword),
	}
}
