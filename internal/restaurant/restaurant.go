// Package restaurant defines the restaurant metadata model shared across the
// indexing and retrieval pipeline.
package restaurant

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidMetadata indicates a restaurant record failed validation.
var ErrInvalidMetadata = errors.New("invalid restaurant metadata")

// Metadata is the source-of-truth record for one physical restaurant.
//
// ID is the Foursquare place identifier and is globally unique across the
// corpus; re-indexing the same ID overwrites prior vectors rather than
// duplicating them.
type Metadata struct {
	// ID is the stable external place identifier (fsq_place_id).
	ID string `json:"fsq_place_id" validate:"required"`

	// Name is the display name of the restaurant.
	Name string `json:"name" validate:"required"`

	// Categories is the ordered list of category labels (short names).
	Categories []string `json:"categories"`

	// Description is optional free text from the places provider.
	Description string `json:"description,omitempty"`

	// Attributes maps attribute names to string or boolean values
	// (e.g. "outdoor_seating": true, "wifi": "free").
	Attributes map[string]any `json:"attributes,omitempty"`

	// Location is the formatted address.
	Location string `json:"location" validate:"required"`

	// Popularity is a 0-1 popularity signal.
	Popularity float64 `json:"popularity"`

	// Price is the price tier (1-4), 0 when unknown.
	Price int `json:"price,omitempty"`

	// Rating is the 0-10 provider rating, 0 when unknown.
	Rating float64 `json:"rating,omitempty"`

	// Tastes lists taste tags like "spicy" or "savory".
	Tastes []string `json:"tastes,omitempty"`
}

// validate is shared; validator.Validate is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the record carries the fields indexing depends on.
func (m *Metadata) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	for k, v := range m.Attributes {
		switch v.(type) {
		case string, bool:
		default:
			return fmt.Errorf("%w: attribute %q must be string or bool, got %T", ErrInvalidMetadata, k, v)
		}
	}
	return nil
}
