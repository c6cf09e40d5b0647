package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/setshaba/mapdata/internal/core/domain"
	"github.com/setshaba/mapdata/internal/core/usecases"
	"github.com/setshaba/mapdata/internal/pkg/geospatial"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "BoundsInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"neLat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"neLon": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"swLat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"swLon": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	stateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DatasetState",
		Fields: graphql.Fields{
			"dataset":    &graphql.Field{Type: graphql.String},
			"state":      &graphql.Field{Type: graphql.String},
			"error":      &graphql.Field{Type: graphql.String},
			"features":   &graphql.Field{Type: graphql.Int},
			"from_cache": &graphql.Field{Type: graphql.Boolean},
			"request_id": &graphql.Field{Type: graphql.Int},
			"updated_at": &graphql.Field{Type: graphql.String},
		},
	})

	datasetType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Dataset",
		Fields: graphql.Fields{
			"name":          &graphql.Field{Type: graphql.String},
			"state":         &graphql.Field{Type: stateType},
			"feature_count": &graphql.Field{Type: graphql.Int},
			"geojson": &graphql.Field{
				Type:        graphql.String,
				Description: "FeatureCollection encoded as a GeoJSON string",
			},
		},
	})

	markerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Marker",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"coordinate":  &graphql.Field{Type: geoPointType},
			"title":       &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
			"color":       &graphql.Field{Type: graphql.String},
			"category":    &graphql.Field{Type: graphql.String},
			"status":      &graphql.Field{Type: graphql.String},
			"distance_km": &graphql.Field{Type: graphql.Float},
		},
	})

	categoryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Category",
		Fields: graphql.Fields{
			"value": &graphql.Field{Type: graphql.String},
			"label": &graphql.Field{Type: graphql.String},
			"color": &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"datasets": &graphql.Field{
				Type:        graphql.NewList(stateType),
				Description: "Load state of every dataset",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					snaps := deps.Datasets.Snapshots()
					out := make([]map[string]interface{}, 0, len(snaps))
					for _, s := range snaps {
						out = append(out, snapshotToGQL(s))
					}
					return out, nil
				},
			},
			"dataset": &graphql.Field{
				Type:        datasetType,
				Description: "A dataset, optionally restricted to a viewport",
				Args: graphql.FieldConfigArgument{
					"name":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"bounds": &graphql.ArgumentConfig{Type: boundsInput},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ctrl, err := deps.Datasets.Get(p.Args["name"].(string))
					if err != nil {
						return nil, err
					}
					bounds, err := boundsFromArgs(p.Args["bounds"])
					if err != nil {
						return nil, err
					}

					fc, _ := ctrl.CurrentView(bounds)
					out := map[string]interface{}{
						"name":  ctrl.Name(),
						"state": snapshotToGQL(ctrl.Snapshot()),
					}
					if fc == nil {
						return out, nil
					}
					body, err := fc.MarshalJSON()
					if err != nil {
						return nil, err
					}
					out["feature_count"] = len(fc.Features)
					out["geojson"] = string(body)
					return out, nil
				},
			},
			"markers": &graphql.Field{
				Type:        graphql.NewList(markerType),
				Description: "Report markers, optionally filtered",
				Args: graphql.FieldConfigArgument{
					"category":        &graphql.ArgumentConfig{Type: graphql.String},
					"status":          &graphql.ArgumentConfig{Type: graphql.String},
					"municipality_id": &graphql.ArgumentConfig{Type: graphql.String},
					"limit":           &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
					"bounds":          &graphql.ArgumentConfig{Type: boundsInput},
					"near_lat":        &graphql.ArgumentConfig{Type: graphql.Float},
					"near_lon":        &graphql.ArgumentConfig{Type: graphql.Float},
					"radius_km":       &graphql.ArgumentConfig{Type: graphql.Float},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Markers == nil {
						return nil, errors.New("reports not available")
					}
					bounds, err := boundsFromArgs(p.Args["bounds"])
					if err != nil {
						return nil, err
					}

					q := usecases.MarkerQuery{Bounds: bounds}
					q.Filter.Category = domain.Category(stringArg(p.Args, "category"))
					q.Filter.Status = domain.Status(stringArg(p.Args, "status"))
					q.Filter.MunicipalityID = stringArg(p.Args, "municipality_id")
					if l, ok := p.Args["limit"].(int); ok {
						q.Filter.Limit = l
					}
					lat, hasLat := p.Args["near_lat"].(float64)
					lon, hasLon := p.Args["near_lon"].(float64)
					if hasLat != hasLon {
						return nil, errors.New("near_lat and near_lon must be given together")
					}
					if hasLat {
						q.Near = &domain.GeoPoint{Lat: lat, Lon: lon}
						if r, ok := p.Args["radius_km"].(float64); ok {
							q.RadiusKm = r
						}
					}

					markers, err := deps.Markers.Markers(p.Context, q)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(markers))
					for _, m := range markers {
						out = append(out, markerToGQL(m))
					}
					return out, nil
				},
			},
			"categories": &graphql.Field{
				Type:        graphql.NewList(categoryType),
				Description: "Report categories with marker colors",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					cats := categoryCatalog()
					out := make([]map[string]interface{}, 0, len(cats))
					for _, c := range cats {
						out = append(out, map[string]interface{}{"value": c.Value, "label": c.Label, "color": c.Color})
					}
					return out, nil
				},
			},
			"distance": &graphql.Field{
				Type:        graphql.Float,
				Description: "Great-circle distance in kilometres",
				Args: graphql.FieldConfigArgument{
					"from_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"from_lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"to_lat":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"to_lon":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					from := domain.GeoPoint{Lat: p.Args["from_lat"].(float64), Lon: p.Args["from_lon"].(float64)}
					to := domain.GeoPoint{Lat: p.Args["to_lat"].(float64), Lon: p.Args["to_lon"].(float64)}
					if !from.Valid() || !to.Valid() {
						return nil, errors.New("coordinates out of range")
					}
					return geospatial.HaversineDistanceKm(from, to), nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"refreshDataset": &graphql.Field{
				Type:        stateType,
				Description: "Drop the cached copy of a dataset and fetch it again",
				Args: graphql.FieldConfigArgument{
					"name": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ctrl, err := deps.Datasets.Get(p.Args["name"].(string))
					if err != nil {
						return nil, err
					}
					if err := ctrl.Refresh(p.Context); err != nil {
						return snapshotToGQL(ctrl.Snapshot()), fmt.Errorf("%w: %w", domain.ErrNotReady, err)
					}
					return snapshotToGQL(ctrl.Snapshot()), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

func snapshotToGQL(s domain.StateSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"dataset":    s.Dataset,
		"state":      string(s.State),
		"error":      s.Error,
		"features":   s.Features,
		"from_cache": s.FromCache,
		"request_id": int(s.RequestID),
		"updated_at": s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func markerToGQL(m domain.Marker) map[string]interface{} {
	out := map[string]interface{}{
		"id":          m.ID,
		"coordinate":  map[string]interface{}{"lat": m.Coordinate.Lat, "lon": m.Coordinate.Lon},
		"title":       m.Title,
		"description": m.Description,
		"color":       m.Color,
		"category":    string(m.Category),
		"status":      string(m.Status),
	}
	if m.Distance != nil {
		out["distance_km"] = *m.Distance
	}
	return out
}

func boundsFromArgs(arg interface{}) (*domain.ViewportBounds, error) {
	m, ok := arg.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	b := domain.ViewportBounds{
		NorthEast: domain.GeoPoint{Lat: m["neLat"].(float64), Lon: m["neLon"].(float64)},
		SouthWest: domain.GeoPoint{Lat: m["swLat"].(float64), Lon: m["swLon"].(float64)},
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

// GraphQLHandler serves POST /graphql.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
