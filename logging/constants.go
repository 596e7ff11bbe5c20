package logging

// These constants are used to identify the various services that may do some logging
const (
	// CLI_SERVICE is the constant used to identify the cmd package
	CLI_SERVICE = "cli"
	// FORK_SERVICE is the constant used to identify the remote state backend
	FORK_SERVICE = "fork"
	// RPC_SERVICE is the constant used to identify the RPC client pool
	RPC_SERVICE = "rpc"
	// CACHE_SERVICE is the constant used to identify the fetch cache
	CACHE_SERVICE = "cache"
	// STORE_SERVICE is the constant used to identify the state store and its snapshots
	STORE_SERVICE = "store"
)
