package message

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
)

// Converter reads a raw BSON document into a target value. It is the
// seam between the subscription machinery and the BSON object mapping
// layer; the default implementation delegates to the driver codec
// registry, so struct tags on the target type apply as usual.
type Converter interface {
	Read(doc bson.Raw, target interface{}) error
}

var _ Converter = RegistryConverter{}

// RegistryConverter is a Converter backed by a bsoncodec.Registry.
type RegistryConverter struct {
	Registry *bsoncodec.Registry
}

// Read unmarshals doc into target using the configured registry.
func (c RegistryConverter) Read(doc bson.Raw, target interface{}) error {
	if err := bson.UnmarshalWithRegistry(c.Registry, doc, target); err != nil {
		return fmt.Errorf("message: cannot convert %T into %T: %w", doc, target, err)
	}

	return nil
}

// DefaultConverter reads documents through the driver's default
// codec registry.
var DefaultConverter Converter = RegistryConverter{Registry: bson.DefaultRegistry}
