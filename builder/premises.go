package builder

import (
	"device-report/config"
	"device-report/models"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// Mean Earth radius in meters.
const earthRadiusMeters = 6371008.8

// checkPremises measures the great-circle distance from the fix to the
// premises centre.
func checkPremises(p config.Premises, loc *models.Location) *models.PremisesCheck {
	centre := s2.LatLngFromDegrees(p.Latitude, p.Longitude)
	fix := s2.LatLngFromDegrees(loc.Latitude, loc.Longitude)

	var angle s1.Angle = centre.Distance(fix)
	meters := angle.Radians() * earthRadiusMeters
	return &models.PremisesCheck{
		DistanceMeters: meters,
		RadiusMeters:   p.RadiusMeters,
		Inside:         meters <= p.RadiusMeters,
	}
}
