package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// UploadsPrefix is the URL prefix under which stored photos are served.
const UploadsPrefix = "/uploads/"
