package http

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/core/usecases"
	"github.com/setshaba/mapdata/internal/pkg/geospatial"
)

// markerFetchLimit is how many reports are read before paging.
const markerFetchLimit = 500

// ListDatasetsHandler returns the load state of every dataset.
func ListDatasetsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": deps.Datasets.Snapshots()})
	}
}

// GetDatasetHandler returns a dataset as GeoJSON, filtered to the requested
// viewport when bounds are given. Responds 503 until the dataset is ready.
func GetDatasetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return serveDataset(c, deps, c.Params("name"))
	}
}

// WardsHandler is the legacy /v1/wards endpoint.
func WardsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return serveDataset(c, deps, "wards")
	}
}

func serveDataset(c *fiber.Ctx, deps *Dependencies, name string) error {
	ctrl, err := deps.Datasets.Get(name)
	if err != nil {
		return errNotFound(c, err.Error())
	}

	bounds, err := parseBounds(c)
	if err != nil {
		return errBadRequest(c, err.Error())
	}

	fc, state := ctrl.CurrentView(bounds)
	if fc == nil {
		return errUnavailable(c, ctrl.Snapshot())
	}

	body, err := fc.MarshalJSON()
	if err != nil {
		return errInternal(c, err.Error())
	}

	c.Set(fiber.HeaderContentType, "application/geo+json")
	c.Set("X-Feature-Count", strconv.Itoa(len(fc.Features)))
	c.Set("X-Dataset-State", string(state))
	if state != domain.StateReady {
		// Previous copy served while a refresh is in flight.
		c.Set(fiber.HeaderCacheControl, "no-cache")
	}
	return c.Send(body)
}

// DatasetStateHandler returns the load state of one dataset.
func DatasetStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctrl, err := deps.Datasets.Get(c.Params("name"))
		if err != nil {
			return errNotFound(c, err.Error())
		}
		c.Set("Cache-Control", "no-cache")
		return c.JSON(ctrl.Snapshot())
	}
}

// RefreshDatasetHandler drops the cached copy of a dataset and fetches it again.
func RefreshDatasetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctrl, err := deps.Datasets.Get(c.Params("name"))
		if err != nil {
			return errNotFound(c, err.Error())
		}

		log := LoggerFromCtx(c.UserContext())
		if err := ctrl.Refresh(c.UserContext()); err != nil {
			log.Warn("dataset refresh failed", "dataset", ctrl.Name(), "error", err)
			return errUnavailable(c, ctrl.Snapshot())
		}

		log.Info("dataset refreshed", "dataset", ctrl.Name())
		return c.JSON(ctrl.Snapshot())
	}
}

// MarkersHandler returns report markers, optionally filtered by category,
// status, municipality, viewport bounds or distance from a point.
func MarkersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Markers == nil {
			return errInternal(c, "reports not available")
		}

		bounds, err := parseBounds(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		near, radius, err := parseNear(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		q := usecases.MarkerQuery{
			Filter: domain.ReportFilter{
				Category:       domain.Category(c.Query("category")),
				Status:         domain.Status(c.Query("status")),
				MunicipalityID: c.Query("municipality_id"),
				Limit:          markerFetchLimit,
			},
			Bounds:   bounds,
			Near:     near,
			RadiusKm: radius,
		}

		markers, err := deps.Markers.Markers(c.UserContext(), q)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidFilter) {
				return errBadRequest(c, err.Error())
			}
			return errInternal(c, err.Error())
		}

		page, pg := paginate(c, markers, 100, 200)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// CategoryInfo describes a report category and its marker color.
type CategoryInfo struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color"`
}

func categoryCatalog() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(domain.Categories))
	for _, cat := range domain.Categories {
		out = append(out, CategoryInfo{Value: string(cat), Label: cat.Label(), Color: cat.Color()})
	}
	return out
}

// CategoriesHandler returns the report categories with their colors.
func CategoriesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "public, max-age=86400")
		return c.JSON(fiber.Map{"data": categoryCatalog()})
	}
}

// DistanceHandler returns the great-circle distance between two points in km.
func DistanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		vals, err := requireFloats(c, "from_lat", "from_lon", "to_lat", "to_lon")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		from := domain.GeoPoint{Lat: vals[0], Lon: vals[1]}
		to := domain.GeoPoint{Lat: vals[2], Lon: vals[3]}
		if !from.Valid() || !to.Valid() {
			return errBadRequest(c, "coordinates out of range")
		}
		return c.JSON(fiber.Map{
			"from":        from,
			"to":          to,
			"distance_km": geospatial.HaversineDistanceKm(from, to),
		})
	}
}

// parseBounds reads viewport bounds from the query string, either as corners
// (ne_lat, ne_lon, sw_lat, sw_lon) or as a region (lat, lon, lat_delta,
// lon_delta). It returns nil when neither form is present.
func parseBounds(c *fiber.Ctx) (*domain.ViewportBounds, error) {
	var b domain.ViewportBounds
	switch {
	case hasAny(c, "ne_lat", "ne_lon", "sw_lat", "sw_lon"):
		vals, err := requireFloats(c, "ne_lat", "ne_lon", "sw_lat", "sw_lon")
		if err != nil {
			return nil, err
		}
		b = domain.ViewportBounds{
			NorthEast: domain.GeoPoint{Lat: vals[0], Lon: vals[1]},
			SouthWest: domain.GeoPoint{Lat: vals[2], Lon: vals[3]},
		}
	case hasAny(c, "lat_delta", "lon_delta"):
		vals, err := requireFloats(c, "lat", "lon", "lat_delta", "lon_delta")
		if err != nil {
			return nil, err
		}
		if vals[2] <= 0 || vals[3] <= 0 {
			return nil, errors.New("lat_delta and lon_delta must be positive")
		}
		b = domain.Region{Latitude: vals[0], Longitude: vals[1], LatitudeDelta: vals[2], LongitudeDelta: vals[3]}.Bounds()
	default:
		return nil, nil
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// parseNear reads near_lat/near_lon/radius_km. Radius is optional.
func parseNear(c *fiber.Ctx) (*domain.GeoPoint, float64, error) {
	if !hasAny(c, "near_lat", "near_lon") {
		return nil, 0, nil
	}
	vals, err := requireFloats(c, "near_lat", "near_lon")
	if err != nil {
		return nil, 0, err
	}
	p := domain.GeoPoint{Lat: vals[0], Lon: vals[1]}
	if !p.Valid() {
		return nil, 0, errors.New("near point out of range")
	}

	var radius float64
	if s := c.Query("radius_km"); s != "" {
		radius, err = strconv.ParseFloat(s, 64)
		if err != nil || radius <= 0 || radius > 1000 {
			return nil, 0, errors.New("radius_km must be between 0 and 1000")
		}
	}
	return &p, radius, nil
}

func hasAny(c *fiber.Ctx, keys ...string) bool {
	for _, k := range keys {
		if c.Query(k) != "" {
			return true
		}
	}
	return false
}

func requireFloats(c *fiber.Ctx, keys ...string) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, k := range keys {
		s := c.Query(k)
		if s == "" {
			return nil, fmt.Errorf("%s is required", k)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", k)
		}
		out[i] = v
	}
	return out, nil
}
