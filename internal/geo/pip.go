package geo

// Contains runs even-odd ray casting with lat as x and lng as y.
// Points exactly on an edge or vertex may land on either side.
func (p *Polygon) Contains(pt Coordinate) bool {
	if p == nil || len(p.Vertices) < 3 {
		return false
	}
	if p.bbox != ([4]float64{}) && !inBBox(pt, p.bbox) {
		return false
	}
	return pointInRing(pt, p.Vertices)
}

func pointInRing(pt Coordinate, ring []Coordinate) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	lat := pt.Latitude
	lng := pt.Longitude
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Latitude, ring[i].Longitude
		xj, yj := ring[j].Latitude, ring[j].Longitude
		if (yi > lng) != (yj > lng) && lat < (xj-xi)*(lng-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func computeBBox(vs []Coordinate) [4]float64 {
	b := [4]float64{90, 180, -90, -180}
	for _, v := range vs {
		if v.Latitude < b[0] {
			b[0] = v.Latitude
		}
		if v.Longitude < b[1] {
			b[1] = v.Longitude
		}
		if v.Latitude > b[2] {
			b[2] = v.Latitude
		}
		if v.Longitude > b[3] {
			b[3] = v.Longitude
		}
	}
	return b
}

func inBBox(pt Coordinate, b [4]float64) bool {
	return pt.Latitude >= b[0] && pt.Latitude <= b[2] && pt.Longitude >= b[1] && pt.Longitude <= b[3]
}
