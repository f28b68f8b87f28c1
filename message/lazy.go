package message

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

type lazy[S, T any] struct {
	raw       S
	body      bson.Raw
	props     Properties
	converter Converter
}

// NewLazy returns a Message that converts its BSON body into T on
// demand, every time Body is called. No conversion result is cached:
// Body is pure given a pure Converter.
//
// A nil converter falls back to DefaultConverter.
func NewLazy[S, T any](raw S, body bson.Raw, props Properties, converter Converter) Message[S, T] {
	if converter == nil {
		converter = DefaultConverter
	}

	return lazy[S, T]{raw: raw, body: body, props: props, converter: converter}
}

func (m lazy[S, T]) Raw() S { return m.raw }

func (m lazy[S, T]) Properties() Properties { return m.props }

// Body converts the underlying BSON document into T.
//
// An empty body yields the zero value of T. When T is bson.Raw the
// document is returned unconverted. Everything else goes through the
// Converter, and a document that cannot be read into T surfaces as an
// error naming both types.
func (m lazy[S, T]) Body() (T, error) {
	var body T

	if len(m.body) == 0 {
		return body, nil
	}

	if target, ok := any(&body).(*bson.Raw); ok {
		*target = m.body
		return body, nil
	}

	if err := m.converter.Read(m.body, &body); err != nil {
		return body, err
	}

	return body, nil
}

func (m lazy[S, T]) String() string {
	var target T
	return fmt.Sprintf("LazyConvertingMessage{properties: %+v, targetType: %T}", m.props, target)
}
