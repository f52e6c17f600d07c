// Package hashutil derives the deterministic InstanceID used as the
// connection-level routing key: hash32(credentials + ":" + uuid).
package hashutil

import (
	"github.com/twmb/murmur3"

	"github.com/jizhuozhi/hermes/broker/internal/model"
)

// InstanceID computes the MurmurHash3 x86-32 digest of
// "credentials:uuid", matching the original broker's scheme so reconnects
// with identical credentials map to the same routing slot across broker
// restarts.
func InstanceID(credentials, uuid string) model.InstanceID {
	key := credentials + ":" + uuid
	return model.InstanceID(murmur3.SeedSum32(0, []byte(key)))
}
