package status

import "errors"

// ErrWriterClaimed is returned by Claim when the receiver already has a writer.
var ErrWriterClaimed = errors.New("status: writer already claimed")
