package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReservationState is the lifecycle state of an inventory reservation.
type ReservationState string

// Reservation state constants.
const (
	ReservationPending   ReservationState = "PENDING"
	ReservationCommitted ReservationState = "COMMITTED"
	ReservationReleased  ReservationState = "RELEASED"
)

// reservationNamespace scopes deterministic reservation ids.
var reservationNamespace = uuid.MustParse("6f1c1a3e-6a4b-4c55-9d55-0c3f5c6b9a10")

// ReservationIDFor derives the reservation id of an order line. The same
// order and product always yield the same id, which makes reserve calls
// idempotent across retries and crash recovery.
func ReservationIDFor(orderID, productID string) string {
	return uuid.NewSHA1(reservationNamespace, []byte(orderID+":"+productID)).String()
}

// Reservation is a provisional hold of stock for one order line.
type Reservation struct {
	ID        string           `json:"id"`
	ProductID string           `json:"product_id"`
	OrderID   string           `json:"order_id"`
	Quantity  int              `json:"quantity"`
	State     ReservationState `json:"state"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// IsPending returns true if the reservation still holds stock provisionally.
func (r *Reservation) IsPending() bool {
	return r.State == ReservationPending
}

// ValidReservationStates returns the set of valid reservation states.
func ValidReservationStates() []ReservationState {
	return []ReservationState{ReservationPending, ReservationCommitted, ReservationReleased}
}
