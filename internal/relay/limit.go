package relay

import (
	"errors"
	"fmt"
	"io"
)

type responseTooLargeError struct {
	limit int64
}

func (e responseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.limit)
}

func isResponseTooLarge(err error) bool {
	var limitErr responseTooLargeError
	return errors.As(err, &limitErr)
}

// readAllWithLimit reads r up to limit bytes. If limit <= 0 it behaves like io.ReadAll.
func readAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, responseTooLargeError{limit: limit}
	}
	return data, nil
}
