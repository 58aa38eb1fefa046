// Package geometry turns geo answers in instance XML into GeoJSON for map
// display.
package geometry

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Extract evaluates xpath against the instance XML and converts the first
// matching answer to GeoJSON. Zero matching nodes or an empty answer yields
// an empty typ and a nil error.
//
// Answers are "lat lon [alt [acc]]" points, or ";"-separated point lists for
// traces and shapes. GeoJSON stores [lon, lat].
func Extract(data []byte, xpath string) (typ, geoJSON string, err error) {
	if strings.TrimSpace(xpath) == "" {
		return "", "", nil
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse instance: %w", err)
	}
	node, err := xmlquery.Query(doc, xpath)
	if err != nil {
		return "", "", fmt.Errorf("invalid geometry xpath %q: %w", xpath, err)
	}
	if node == nil {
		return "", "", nil
	}
	value := strings.TrimSpace(node.InnerText())
	if value == "" {
		return "", "", nil
	}

	g, err := Parse(value)
	if err != nil {
		return "", "", err
	}
	out, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return "", "", fmt.Errorf("failed to encode geometry: %w", err)
	}
	return g.GeoJSONType(), string(out), nil
}

// Parse converts a geopoint, geotrace or geoshape answer to a geometry.
func Parse(value string) (orb.Geometry, error) {
	var points []orb.Point
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := parsePoint(part)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	switch {
	case len(points) == 0:
		return nil, fmt.Errorf("no coordinates in %q", value)
	case len(points) == 1:
		return points[0], nil
	case len(points) >= 4 && points[0].Equal(points[len(points)-1]):
		return orb.Polygon{orb.Ring(points)}, nil
	default:
		return orb.LineString(points), nil
	}
}

func parsePoint(s string) (orb.Point, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 || len(fields) > 4 {
		return orb.Point{}, fmt.Errorf("invalid geopoint %q", s)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return orb.Point{}, fmt.Errorf("geopoint %q out of range", s)
	}
	return orb.Point{lon, lat}, nil
}
