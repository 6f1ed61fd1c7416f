package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneMissionEngine/internal/geo"
)

func TestDecodeOrderReady(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    geo.Point // delivery location
		poison  bool
	}{
		{
			name:    "canonical",
			payload: `{"version":1,"orderId":"o-1","pickupLocation":{"lat":1,"lng":2},"deliveryLocation":{"lat":3,"lng":4}}`,
			want:    geo.Point{Lat: 3, Lng: 4},
		},
		{
			name:    "legacy field names",
			payload: `{"orderId":"o-1","restaurantLocation":{"lat":1,"lng":2},"deliveryAddress":{"location":{"lat":0,"lng":0}}}`,
			want:    geo.Point{Lat: 0, Lng: 0},
		},
		{name: "not json", payload: `{"orderId":`, poison: true},
		{name: "missing order id", payload: `{"pickupLocation":{"lat":1,"lng":2},"deliveryLocation":{"lat":3,"lng":4}}`, poison: true},
		{name: "missing pickup", payload: `{"orderId":"o-1","deliveryLocation":{"lat":3,"lng":4}}`, poison: true},
		{name: "missing lng", payload: `{"orderId":"o-1","pickupLocation":{"lat":1},"deliveryLocation":{"lat":3,"lng":4}}`, poison: true},
		{name: "empty address", payload: `{"orderId":"o-1","pickupLocation":{"lat":1,"lng":2},"deliveryAddress":{}}`, poison: true},
		{name: "out of range", payload: `{"orderId":"o-1","pickupLocation":{"lat":100,"lng":2},"deliveryLocation":{"lat":3,"lng":4}}`, poison: true},
		{name: "future version", payload: `{"version":2,"orderId":"o-1","pickupLocation":{"lat":1,"lng":2},"deliveryLocation":{"lat":3,"lng":4}}`, poison: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeOrderReady([]byte(tt.payload))
			if tt.poison {
				require.ErrorIs(t, err, ErrPoison)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "o-1", req.OrderID)
			assert.Equal(t, geo.Point{Lat: 1, Lng: 2}, req.PickupLocation)
			assert.Equal(t, tt.want, req.DeliveryLocation)
		})
	}
}
