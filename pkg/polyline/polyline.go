// Package polyline encodes and decodes the Encoded Polyline Algorithm Format
// used by Google Directions, OpenRouteService and most map clients.
package polyline

import (
	"errors"
	"math"
)

// DefaultPrecision is the number of decimal places used by Google and
// OpenRouteService. OSRM and Valhalla use 6.
const DefaultPrecision = 5

// ErrMalformed is returned for input that ends inside a value or pairs a
// latitude with no longitude.
var ErrMalformed = errors.New("polyline: malformed input")

// Coordinate is a latitude/longitude pair.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Decode decodes a precision-5 polyline.
func Decode(encoded string) ([]Coordinate, error) {
	return DecodePrecision(encoded, DefaultPrecision)
}

// DecodePrecision decodes a polyline encoded with the given number of decimal
// places. An empty string decodes to no coordinates.
func DecodePrecision(encoded string, precision int) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	factor := math.Pow10(precision)
	coords := make([]Coordinate, 0, len(encoded)/4)
	var lat, lon, i int

	for i < len(encoded) {
		dLat, next, ok := decodeValue(encoded, i)
		if !ok {
			return nil, ErrMalformed
		}
		dLon, next, ok := decodeValue(encoded, next)
		if !ok {
			return nil, ErrMalformed
		}
		i = next

		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{
			Lat: float64(lat) / factor,
			Lon: float64(lon) / factor,
		})
	}

	return coords, nil
}

// decodeValue reads one zig-zag varint starting at i. ok is false when the
// input ends before the terminating chunk or holds a byte outside the alphabet.
func decodeValue(encoded string, i int) (value, next int, ok bool) {
	var result, shift int
	for i < len(encoded) {
		b := int(encoded[i]) - 63
		i++
		if b < 0 || b > 0x3f {
			return 0, i, false
		}
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), i, true
			}
			return result >> 1, i, true
		}
	}
	return 0, i, false
}

// Encode encodes coordinates at precision 5.
func Encode(coords []Coordinate) string {
	return EncodePrecision(coords, DefaultPrecision)
}

// EncodePrecision encodes coordinates with the given number of decimal places.
func EncodePrecision(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	buf := make([]byte, 0, len(coords)*6)
	var prevLat, prevLon int

	for _, c := range coords {
		lat := int(math.Round(c.Lat * factor))
		lon := int(math.Round(c.Lon * factor))

		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lon-prevLon)

		prevLat, prevLon = lat, lon
	}

	return string(buf)
}

func encodeValue(buf []byte, value int) []byte {
	v := value << 1
	if value < 0 {
		v = ^v
	}
	for v >= 0x20 {
		buf = append(buf, byte((v&0x1f)|0x20)+63)
		v >>= 5
	}
	return append(buf, byte(v)+63)
}
