package model

import "time"

// ClientConfig is the companion client configuration.
type ClientConfig struct {
	APIURL         string
	PollInterval   time.Duration
	// RequestTimeout is the timeout of every server request, 0 means none.
	RequestTimeout time.Duration
	Location       *time.Location
}
