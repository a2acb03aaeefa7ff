package delivery

import (
	"github.com/bloodlink/service-delivery/internal/domain/route"
)

// Location is a named facility position: a blood bank, hospital or collection site.
type Location struct {
	FacilityID   string         `json:"facility_id,omitempty"`
	FacilityName string         `json:"facility_name"`
	Address      string         `json:"address,omitempty"`
	Point        route.Waypoint `json:"point"`
}
