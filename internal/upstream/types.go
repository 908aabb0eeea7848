package upstream

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrUnknownDisplayStyle reports a name-style shape the API is not documented
// to produce. It surfaces during response decoding so undefined color values
// never reach the store.
var ErrUnknownDisplayStyle = errors.New("unknown display style")

// Level is an upstream level record.
type Level struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RawRun is an upstream run record as returned by the runs endpoint.
type RawRun struct {
	ID     string `json:"id"`
	Level  string `json:"level"`
	Videos struct {
		Links []struct {
			URI string `json:"uri"`
		} `json:"links"`
		Text string `json:"text"`
	} `json:"videos"`
	Status struct {
		Status string `json:"status"`
	} `json:"status"`
	Players []struct {
		ID string `json:"id"`
	} `json:"players"`
	Date      string `json:"date"`
	Submitted string `json:"submitted"`
	Times     struct {
		PrimaryT float64 `json:"primary_t"`
	} `json:"times"`
	Values map[string]string `json:"values"`
}

// RawUser is an upstream user profile.
type RawUser struct {
	ID    string `json:"id"`
	Names struct {
		International string `json:"international"`
	} `json:"names"`
	WebLink   string    `json:"weblink"`
	NameStyle NameStyle `json:"name-style"`
}

// StyleKind discriminates the display-style union of a user profile.
type StyleKind int

const (
	StyleNone StyleKind = iota
	StyleSolid
	StyleGradient
)

type styleColor struct {
	Light string `json:"light"`
	Dark  string `json:"dark"`
}

// NameStyle is the validated display style of a user name: a solid color,
// a gradient, or nothing.
type NameStyle struct {
	Kind      StyleKind
	Color     *styleColor
	ColorFrom *styleColor
	ColorTo   *styleColor
}

// UnmarshalJSON validates the style tag and keeps only the fields that belong
// to the tagged variant.
func (s *NameStyle) UnmarshalJSON(data []byte) error {
	var raw struct {
		Style     string      `json:"style"`
		Color     *styleColor `json:"color"`
		ColorFrom *styleColor `json:"color-from"`
		ColorTo   *styleColor `json:"color-to"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Style {
	case "":
		s.Kind = StyleNone
	case "solid":
		s.Kind = StyleSolid
		s.Color = raw.Color
	case "gradient":
		s.Kind = StyleGradient
		s.ColorFrom = raw.ColorFrom
		s.ColorTo = raw.ColorTo
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDisplayStyle, raw.Style)
	}
	return nil
}

// ColorHint returns the display color for the style, or nil when the style
// carries none. Gradients contribute their starting color.
func (s NameStyle) ColorHint() *string {
	switch s.Kind {
	case StyleSolid:
		if s.Color != nil && s.Color.Light != "" {
			c := s.Color.Light
			return &c
		}
	case StyleGradient:
		if s.ColorFrom != nil && s.ColorFrom.Light != "" {
			c := s.ColorFrom.Light
			return &c
		}
	}
	return nil
}
