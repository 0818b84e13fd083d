package overpass

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrTimeout   = errors.New("overpass query timed out")
	ErrDupeQuery = errors.New("overpass rejected a duplicate query")

	dispatcherPrefix = []byte("Dispatcher_Client::request_read_and_idx::")
	dispatcherErrors = map[string]error{
		"timeout":         ErrTimeout,
		"duplicate_query": ErrDupeQuery,
	}
)

// errorFromBody finds the dispatcher error Overpass embeds in its
// html/text replies. nil means the body carries none.
func errorFromBody(body []byte) error {
	idx := bytes.Index(body, dispatcherPrefix)
	if idx < 0 {
		return nil
	}

	rest := body[idx+len(dispatcherPrefix):]
	for token, err := range dispatcherErrors {
		if bytes.HasPrefix(rest, []byte(token)) {
			return err
		}
	}

	if end := bytes.IndexAny(rest, " <\n"); end >= 0 {
		rest = rest[:end]
	}
	return fmt.Errorf("overpass error: %s", rest)
}
