package models

import "errors"

// ErrTraceNotFound is returned by backend clients when the backend answers successfully but
// reports that the requested trace does not exist.
var ErrTraceNotFound = errors.New("trace not found")
