package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-tour-booking/internal/booking"
)

// Authentication happens upstream; the gateway forwards the caller here.
const (
	HeaderActorRole = "X-Actor-Role"
	HeaderActorID   = "X-Actor-ID"
)

type actorKey struct{}

func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := booking.Actor{
			Role: booking.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
			ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
		}
		if !a.Role.Valid() || a.ID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Error: "missing or invalid " + HeaderActorRole + "/" + HeaderActorID,
				Code:  "unauthenticated",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, a)))
	})
}

func actorFrom(ctx context.Context) booking.Actor {
	a, _ := ctx.Value(actorKey{}).(booking.Actor)
	return a
}
