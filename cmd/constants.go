package cmd

// DefaultProjectConfigFilename describes the default config filename for a given project folder.
const DefaultProjectConfigFilename = "forkdb.json"

// DefaultPrefetchConcurrency describes how many remote reads the snapshot command issues at once.
const DefaultPrefetchConcurrency = 16
