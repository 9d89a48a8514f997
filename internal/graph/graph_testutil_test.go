package graph

import "time"

const (
	defaultEventualTimeout = 2 * time.Second
	defaultEventualTick    = 10 * time.Millisecond
)
