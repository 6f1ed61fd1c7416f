package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"droneMissionEngine/internal/geo"
	"droneMissionEngine/internal/mission"
)

// SchemaVersion is the newest OrderReady version this service understands.
const SchemaVersion = 1

// ErrPoison marks a message that can never be processed.
var ErrPoison = errors.New("poison message")

// Location is a coordinate pair as producers send it. Pointers distinguish
// a missing coordinate from zero.
type Location struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (l *Location) point() (geo.Point, bool) {
	if l == nil || l.Lat == nil || l.Lng == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *l.Lat, Lng: *l.Lng}, true
}

// Address is the nested delivery address used by older producers.
type Address struct {
	Location *Location `json:"location"`
}

// OrderReady announces an order that is ready for pickup.
// Version 0 (absent) is read as version 1.
type OrderReady struct {
	Version            int       `json:"version,omitempty"`
	OrderID            string    `json:"orderId"`
	PickupLocation     *Location `json:"pickupLocation,omitempty"`
	RestaurantLocation *Location `json:"restaurantLocation,omitempty"`
	DeliveryLocation   *Location `json:"deliveryLocation,omitempty"`
	DeliveryAddress    *Address  `json:"deliveryAddress,omitempty"`
}

// DecodeOrderReady validates a raw payload and maps it to a mission request.
// Every failure wraps ErrPoison.
func DecodeOrderReady(data []byte) (mission.CreateRequest, error) {
	var msg OrderReady
	if err := json.Unmarshal(data, &msg); err != nil {
		return mission.CreateRequest{}, fmt.Errorf("%w: decode: %v", ErrPoison, err)
	}
	if msg.Version == 0 {
		msg.Version = 1
	}
	if msg.Version < 0 || msg.Version > SchemaVersion {
		return mission.CreateRequest{}, fmt.Errorf("%w: unsupported version %d", ErrPoison, msg.Version)
	}

	req := mission.CreateRequest{OrderID: strings.TrimSpace(msg.OrderID)}
	if req.OrderID == "" {
		return mission.CreateRequest{}, fmt.Errorf("%w: missing orderId", ErrPoison)
	}

	pickup, ok := msg.PickupLocation.point()
	if !ok {
		pickup, ok = msg.RestaurantLocation.point()
	}
	if !ok {
		return mission.CreateRequest{}, fmt.Errorf("%w: missing pickupLocation", ErrPoison)
	}

	var dest geo.Point
	dest, ok = msg.DeliveryLocation.point()
	if !ok && msg.DeliveryAddress != nil {
		dest, ok = msg.DeliveryAddress.Location.point()
	}
	if !ok {
		return mission.CreateRequest{}, fmt.Errorf("%w: missing deliveryLocation", ErrPoison)
	}

	if !pickup.Valid() || !dest.Valid() {
		return mission.CreateRequest{}, fmt.Errorf("%w: coordinates out of range", ErrPoison)
	}
	req.PickupLocation, req.DeliveryLocation = pickup, dest
	return req, nil
}

// OrderDelivered is published once a mission has returned its drone.
type OrderDelivered struct {
	OrderID     string    `json:"orderId"`
	DroneID     int64     `json:"droneId"`
	DeliveredAt time.Time `json:"deliveredAt"`
	Status      string    `json:"status"`
}
