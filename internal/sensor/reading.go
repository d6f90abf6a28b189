// Package sensor holds the identity and reading types shared by the
// decoder, the aggregate store and every downstream observer.
package sensor

import "time"

// Reading is one temperature sample for one sensor, already decoded.
type Reading struct {
	ID          ID
	Temperature uint8 // degrees Celsius, 0-255
	Time        time.Time
}
