package subscription

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// preparePipeline resolves the configured filter into the pipeline
// handed to the watch call. A structured filter gets its field
// references prefixed to match the change event envelope, a
// pre-compiled pipeline passes through untouched, and anything else is
// a configuration error.
func (o ChangeStreamOptions) preparePipeline() (mongo.Pipeline, error) {
	switch filter := o.filter.(type) {
	case nil:
		return nil, nil
	case mongo.Pipeline:
		return filter, nil
	case []bson.D:
		pipeline := make(mongo.Pipeline, 0, len(filter))
		for _, stage := range filter {
			pipeline = append(pipeline, prefixDocumentKeys(stage))
		}

		return pipeline, nil
	default:
		return nil, fmt.Errorf(
			"subscription: change stream filter must be aggregation stages or a mongo.Pipeline, got %T",
			filter,
		)
	}
}

// prefixDocumentKeys rewrites every key not starting with "$" to
// "fullDocument.<key>", descending into nested documents and into
// documents inside arrays. Change event envelopes nest the user
// document under fullDocument while callers author filters against
// user fields.
func prefixDocumentKeys(doc bson.D) bson.D {
	result := make(bson.D, 0, len(doc))

	for _, elem := range doc {
		key := elem.Key
		if !strings.HasPrefix(key, "$") {
			key = "fullDocument." + key
		}

		result = append(result, bson.E{Key: key, Value: prefixValue(elem.Value)})
	}

	return result
}

func prefixValue(value interface{}) interface{} {
	switch v := value.(type) {
	case bson.D:
		return prefixDocumentKeys(v)
	case bson.M:
		result := make(bson.M, len(v))
		for key, val := range v {
			if !strings.HasPrefix(key, "$") {
				key = "fullDocument." + key
			}

			result[key] = prefixValue(val)
		}

		return result
	case bson.A:
		return prefixArray(v)
	case []interface{}:
		return prefixArray(v)
	case []bson.D:
		result := make([]bson.D, 0, len(v))
		for _, doc := range v {
			result = append(result, prefixDocumentKeys(doc))
		}

		return result
	default:
		return value
	}
}

func prefixArray[S ~[]interface{}](values S) S {
	result := make(S, 0, len(values))
	for _, value := range values {
		result = append(result, prefixValue(value))
	}

	return result
}
