package redisx

import (
	"fmt"
	"time"
)

const (
	// idem:reservation:{actor_id}:{key} -> order id
	KeyIdemReservation = "idem:reservation:%s:%s"

	// order_status:{order_id} -> StatusEntry JSON
	KeyOrderStatus = "order_status:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)

func IdemReservationKey(actorID, key string) string {
	return fmt.Sprintf(KeyIdemReservation, actorID, key)
}

func OrderStatusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

func DedupKey(service, eventID string) string { return fmt.Sprintf(KeyDedup, service, eventID) }
