package svc

import "errors"

// ErrNoStrategiesEnabled means the config enables no strategy at all; the
// engine would tick without ever producing a signal.
var ErrNoStrategiesEnabled = errors.New("no strategies enabled")
