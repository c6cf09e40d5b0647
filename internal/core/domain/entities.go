package domain

import (
	"errors"
	"time"
)

// ErrInvalidFilter means a report filter names an unknown category or status.
var ErrInvalidFilter = errors.New("invalid report filter")

// Category classifies an issue report.
type Category string

const (
	CategoryWater       Category = "water"
	CategoryElectricity Category = "electricity"
	CategoryRoads       Category = "roads"
	CategoryWaste       Category = "waste"
	CategorySafety      Category = "safety"
	CategoryOther       Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryWater, CategoryElectricity, CategoryRoads, CategoryWaste, CategorySafety, CategoryOther,
}

// DefaultMarkerColor is used for categories without a dedicated color.
const DefaultMarkerColor = "#9E9E9E"

var categoryColors = map[Category]string{
	CategoryWater:       "#2196F3",
	CategoryElectricity: "#FFC107",
	CategoryRoads:       "#FF5722",
	CategoryWaste:       "#4CAF50",
	CategorySafety:      "#F44336",
}

var categoryLabels = map[Category]string{
	CategoryWater:       "Water & Sanitation",
	CategoryElectricity: "Electricity",
	CategoryRoads:       "Roads & Transport",
	CategoryWaste:       "Waste Management",
	CategorySafety:      "Public Safety",
	CategoryOther:       "Other",
}

// Color returns the marker color for the category.
func (c Category) Color() string {
	if color, ok := categoryColors[c]; ok {
		return color
	}
	return DefaultMarkerColor
}

// Label returns the human-readable category name.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Status is the lifecycle state of an issue report.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusInProgress   Status = "in_progress"
	StatusResolved     Status = "resolved"
)

// Statuses lists every report status in lifecycle order.
var Statuses = []Status{StatusPending, StatusAcknowledged, StatusInProgress, StatusResolved}

var statusColors = map[Status]string{
	StatusPending:      "#FF9800",
	StatusAcknowledged: "#2196F3",
	StatusInProgress:   "#9C27B0",
	StatusResolved:     "#4CAF50",
}

// Color returns the badge color for the status.
func (s Status) Color() string {
	if color, ok := statusColors[s]; ok {
		return color
	}
	return DefaultMarkerColor
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusColors[s]
	return ok
}

// Report is a citizen-submitted issue shown as a map marker.
type Report struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       Category  `json:"category"`
	Status         Status    `json:"status"`
	Location       GeoPoint  `json:"location"`
	Address        string    `json:"address,omitempty"`
	MunicipalityID string    `json:"municipality_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ReportFilter narrows the reports fetched for the map.
type ReportFilter struct {
	Category       Category `json:"category,omitempty"`
	Status         Status   `json:"status,omitempty"`
	MunicipalityID string   `json:"municipality_id,omitempty"`
	Limit          int      `json:"limit,omitempty"`
}

// Marker is a renderable point on the map derived from a report.
type Marker struct {
	ID          string   `json:"id"`
	Coordinate  GeoPoint `json:"coordinate"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Category    Category `json:"category"`
	Status      Status   `json:"status"`
	Distance    *float64 `json:"distance_km,omitempty"` // computed field
	Report      *Report  `json:"report,omitempty"`
}

// NewMarker builds the map marker for a report.
func NewMarker(r Report) Marker {
	report := r
	return Marker{
		ID:          r.ID,
		Coordinate:  r.Location,
		Title:       r.Title,
		Description: r.Description,
		Color:       r.Category.Color(),
		Category:    r.Category,
		Status:      r.Status,
		Report:      &report,
	}
}

// Municipality is a local authority whose boundary polygon is served as a dataset.
type Municipality struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Province string `json:"province,omitempty"`
	// Bounds is the raw GeoJSON geometry of the municipal boundary.
	Bounds []byte `json:"-"`
}
