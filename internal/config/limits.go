package config

const (
	// MaxNodeIDLength is the maximum accepted length for a node ID argument.
	// Generated IDs are 36-character UUIDs; anything far longer is rejected
	// before it reaches a storage backend.
	MaxNodeIDLength = 64

	// MaxSeedNodes caps how many nodes a single seed document may create.
	MaxSeedNodes = 10000
)
