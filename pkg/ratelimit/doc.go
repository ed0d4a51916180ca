// Package ratelimit spaces outbound requests to the Bluesky API.
//
// A single Gate is created per process and shared by every component that
// talks to the network. Each admitted request is at least the configured
// interval (750ms by default) after the previous one, and the first request
// waits one interval after the gate is created.
//
//	gate := ratelimit.NewGate(ratelimit.DefaultInterval, nil)
//	if err := gate.Wait(ctx); err != nil {
//	    return err
//	}
//
// Time is read through the Clock interface. Tests use FakeClock, whose Sleep
// advances virtual time instead of blocking.
package ratelimit
