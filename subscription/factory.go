package subscription

import (
	"fmt"

	"github.com/mongofeed/go-mongofeed/logger"
	"github.com/mongofeed/go-mongofeed/message"
)

// taskFactory builds the task matching a request variant.
type taskFactory struct {
	db         Database
	converter  message.Converter
	translator ErrorTranslator
	log        logger.Logger
}

// forRequest validates the request and dispatches on its options
// variant. Unknown variants and malformed requests are configuration
// errors surfaced to the Register caller.
func (f taskFactory) forRequest(request Request, errHandler ErrorHandler) (*task, error) {
	if request == nil {
		return nil, ErrNilRequest
	}

	if err := request.validate(); err != nil {
		return nil, err
	}

	var (
		strategy cursorStrategy
		err      error
	)

	switch opts := request.RequestOptions().(type) {
	case ChangeStreamOptions:
		strategy, err = newChangeStreamStrategy(opts, request.documentTarget())
		if err != nil {
			return nil, err
		}
	case TailableOptions:
		strategy = &tailableStrategy{options: opts}
	default:
		return nil, fmt.Errorf("subscription: unsupported request options type %T", opts)
	}

	return newTask(f.db, request, strategy, f.converter, errHandler, f.translator, f.log), nil
}
