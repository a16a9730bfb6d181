package casan

import (
	"time"
)

// CoAP transmission parameters (RFC 7252 4.8)
const (
	ACK_TIMEOUT       = 2 * time.Second
	ACK_RANDOM_FACTOR = 1.5
	MAX_RETRANSMIT    = 4
)

const (
	DEFAULT_FIRST_HELLO    = 3 * time.Second
	DEFAULT_HELLO_INTERVAL = 10 * time.Second
	DEFAULT_SLAVE_TTL      = 3600 * time.Second
	DEFAULT_CACHE_CLEANUP  = 60 * time.Second
	DEFAULT_MAX_AGE        = 60 * time.Second

	DEFAULT_CASAN_NAMESPACE = "casan"

	DEDUP_MAX_ENTRIES = 1024
	TOKEN_LENGTH      = 2
)

// CASAN control namespace
var ctrlPath = []string{".well-known", "casan"}
