package domain

// Location is a transaction destination. Locations are partitioned into a
// high-risk set and a normal set; the two never overlap.
type Location string

const (
	LocationMiami        Location = "Miami, FL"
	LocationLasVegas     Location = "Las Vegas, NV"
	LocationAtlanticCity Location = "Atlantic City, NJ"
	LocationLosAngeles   Location = "Los Angeles, CA"
	LocationNewYork      Location = "New York, NY"
	LocationChicago      Location = "Chicago, IL"

	LocationAustin       Location = "Austin, TX"
	LocationDenver       Location = "Denver, CO"
	LocationSeattle      Location = "Seattle, WA"
	LocationPortland     Location = "Portland, OR"
	LocationBoston       Location = "Boston, MA"
	LocationPhiladelphia Location = "Philadelphia, PA"
	LocationPhoenix      Location = "Phoenix, AZ"
	LocationSanDiego     Location = "San Diego, CA"
	LocationDallas       Location = "Dallas, TX"
	LocationHouston      Location = "Houston, TX"
	LocationAtlanta      Location = "Atlanta, GA"
	LocationNashville    Location = "Nashville, TN"
)

var highRiskLocations = []Location{
	LocationMiami,
	LocationLasVegas,
	LocationAtlanticCity,
	LocationLosAngeles,
	LocationNewYork,
	LocationChicago,
}

var normalLocations = []Location{
	LocationAustin,
	LocationDenver,
	LocationSeattle,
	LocationPortland,
	LocationBoston,
	LocationPhiladelphia,
	LocationPhoenix,
	LocationSanDiego,
	LocationDallas,
	LocationHouston,
	LocationAtlanta,
	LocationNashville,
}

// Coordinates is an approximate city center.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

var locationCoordinates = map[Location]Coordinates{
	LocationMiami:        {25.7617, -80.1918},
	LocationLasVegas:     {36.1699, -115.1398},
	LocationAtlanticCity: {39.3643, -74.4229},
	LocationLosAngeles:   {34.0522, -118.2437},
	LocationNewYork:      {40.7128, -74.0060},
	LocationChicago:      {41.8781, -87.6298},
	LocationAustin:       {30.2672, -97.7431},
	LocationDenver:       {39.7392, -104.9903},
	LocationSeattle:      {47.6062, -122.3321},
	LocationPortland:     {45.5152, -122.6784},
	LocationBoston:       {42.3601, -71.0589},
	LocationPhiladelphia: {39.9526, -75.1652},
	LocationPhoenix:      {33.4484, -112.0740},
	LocationSanDiego:     {32.7157, -117.1611},
	LocationDallas:       {32.7767, -96.7970},
	LocationHouston:      {29.7604, -95.3698},
	LocationAtlanta:      {33.7490, -84.3880},
	LocationNashville:    {36.1627, -86.7816},
}

// HighRiskLocations returns the high-risk destination set.
func HighRiskLocations() []Location {
	out := make([]Location, len(highRiskLocations))
	copy(out, highRiskLocations)
	return out
}

// NormalLocations returns the normal destination set.
func NormalLocations() []Location {
	out := make([]Location, len(normalLocations))
	copy(out, normalLocations)
	return out
}

// IsHighRisk reports whether l belongs to the high-risk set.
func (l Location) IsHighRisk() bool {
	for _, hr := range highRiskLocations {
		if l == hr {
			return true
		}
	}
	return false
}

// Valid reports whether l is a declared location.
func (l Location) Valid() bool {
	_, ok := locationCoordinates[l]
	return ok
}

// Coordinates returns the approximate center of l.
func (l Location) Coordinates() (Coordinates, bool) {
	c, ok := locationCoordinates[l]
	return c, ok
}

// HighRiskCities is the merchant-city set that raises the effective fraud
// rate. It is matched against Merchant.City and is not a Location.
var HighRiskCities = []string{"Miami", "Las Vegas", "Atlantic City"}

// IsHighRiskCity reports whether a merchant city is in HighRiskCities.
func IsHighRiskCity(city string) bool {
	for _, c := range HighRiskCities {
		if c == city {
			return true
		}
	}
	return false
}
