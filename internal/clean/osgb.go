package clean

import (
	"math"

	"github.com/wroge/wgs84"
)

// British National Grid bounds, metres.
const (
	maxEasting  = 700000
	maxNorthing = 1300000
)

// National Grid transverse Mercator projection constants.
const (
	gridScale  = 0.9996012717
	gridLat0   = 49.0
	gridLon0   = -2.0
	gridFalseE = 400000.0
	gridFalseN = -100000.0
)

// nationalGridCRS is EPSG:27700. The OSGB36 datum and its Helmert shift to
// WGS84 come from wgs84; the projection is the Ordnance Survey series,
// which stays within a millimetre across the grid.
var nationalGridCRS = wgs84.ProjectedReferenceSystem{
	Datum:      wgs84.OSGB36(),
	Projection: nationalGrid{},
}

var gridToLonLat = wgs84.Transform(nationalGridCRS, wgs84.LonLat())

// InGrid reports whether (e, n) lies within the National Grid.
func InGrid(e, n float64) bool {
	return e > 0 && n > 0 && e <= maxEasting && n <= maxNorthing
}

// GridToWGS84 converts an OSGB36 National Grid easting/northing to WGS84
// latitude and longitude in degrees, accurate to a few metres.
func GridToWGS84(easting, northing float64) (lat, lng float64) {
	lng, lat, _ = gridToLonLat(easting, northing, 0)
	return lat, lng
}

// nationalGrid implements wgs84.Projection for the National Grid.
type nationalGrid struct{}

type gridEllipsoid struct {
	a, b, e2, n float64
}

func newGridEllipsoid(s wgs84.Spheroid) gridEllipsoid {
	a := s.A()
	b := a * (1 - 1/s.Fi())
	return gridEllipsoid{a: a, b: b, e2: 1 - (b*b)/(a*a), n: (a - b) / (a + b)}
}

// arc is the scaled meridional arc from the true origin to phi.
func (el gridEllipsoid) arc(phi float64) float64 {
	n, n2, n3 := el.n, el.n*el.n, el.n*el.n*el.n
	phi0 := radians(gridLat0)
	ma := (1 + n + 1.25*n2 + 1.25*n3) * (phi - phi0)
	mb := (3*n + 3*n2 + 21.0/8*n3) * math.Sin(phi-phi0) * math.Cos(phi+phi0)
	mc := (15.0/8*n2 + 15.0/8*n3) * math.Sin(2*(phi-phi0)) * math.Cos(2*(phi+phi0))
	md := 35.0 / 24 * n3 * math.Sin(3*(phi-phi0)) * math.Cos(3*(phi+phi0))
	return el.b * gridScale * (ma - mb + mc - md)
}

// radii returns the transverse and meridional radii of curvature at phi.
func (el gridEllipsoid) radii(phi float64) (nu, rho float64) {
	sin := math.Sin(phi)
	nu = el.a * gridScale / math.Sqrt(1-el.e2*sin*sin)
	rho = el.a * gridScale * (1 - el.e2) / math.Pow(1-el.e2*sin*sin, 1.5)
	return nu, rho
}

func (nationalGrid) ToLonLat(east, north float64, s wgs84.Spheroid) (lon, lat float64) {
	el := newGridEllipsoid(s)

	phi := radians(gridLat0)
	M := 0.0
	for {
		phi = (north-gridFalseN-M)/(el.a*gridScale) + phi
		M = el.arc(phi)
		if math.Abs(north-gridFalseN-M) < 1e-5 {
			break
		}
	}

	cos, tan := math.Cos(phi), math.Tan(phi)
	nu, rho := el.radii(phi)
	eta2 := nu/rho - 1
	tan2, tan4, tan6 := tan*tan, math.Pow(tan, 4), math.Pow(tan, 6)

	vii := tan / (2 * rho * nu)
	viii := tan / (24 * rho * math.Pow(nu, 3)) * (5 + 3*tan2 + eta2 - 9*tan2*eta2)
	ix := tan / (720 * rho * math.Pow(nu, 5)) * (61 + 90*tan2 + 45*tan4)
	x := 1 / (cos * nu)
	xi := 1 / (cos * 6 * math.Pow(nu, 3)) * (nu/rho + 2*tan2)
	xii := 1 / (cos * 120 * math.Pow(nu, 5)) * (5 + 28*tan2 + 24*tan4)
	xiia := 1 / (cos * 5040 * math.Pow(nu, 7)) * (61 + 662*tan2 + 1320*tan4 + 720*tan6)

	dE := east - gridFalseE
	phi = phi - vii*dE*dE + viii*math.Pow(dE, 4) - ix*math.Pow(dE, 6)
	lambda := radians(gridLon0) + x*dE - xi*math.Pow(dE, 3) + xii*math.Pow(dE, 5) - xiia*math.Pow(dE, 7)
	return degrees(lambda), degrees(phi)
}

func (nationalGrid) FromLonLat(lon, lat float64, s wgs84.Spheroid) (east, north float64) {
	el := newGridEllipsoid(s)
	phi := radians(lat)
	sin, cos, tan := math.Sin(phi), math.Cos(phi), math.Tan(phi)
	tan2, tan4 := tan*tan, math.Pow(tan, 4)
	nu, rho := el.radii(phi)
	eta2 := nu/rho - 1

	i := el.arc(phi) + gridFalseN
	ii := nu / 2 * sin * cos
	iii := nu / 24 * sin * math.Pow(cos, 3) * (5 - tan2 + 9*eta2)
	iiia := nu / 720 * sin * math.Pow(cos, 5) * (61 - 58*tan2 + tan4)
	iv := nu * cos
	v := nu / 6 * math.Pow(cos, 3) * (nu/rho - tan2)
	vi := nu / 120 * math.Pow(cos, 5) * (5 - 18*tan2 + tan4 + 14*eta2 - 58*tan2*eta2)

	dl := radians(lon) - radians(gridLon0)
	north = i + ii*dl*dl + iii*math.Pow(dl, 4) + iiia*math.Pow(dl, 6)
	east = gridFalseE + iv*dl + v*math.Pow(dl, 3) + vi*math.Pow(dl, 5)
	return east, north
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }
