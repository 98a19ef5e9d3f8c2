package config

// GlobalFlags contains common flags used across commands
type GlobalFlags struct {
	ConfigPath string
	Format     string
	LogFormat  string
	Verbose    bool
	NoColor    bool

	// Command-specific configurations
	Mirror MirrorConfig
}

// MirrorConfig holds the mirror command flags that override the config file.
// They are applied only when set on the command line.
type MirrorConfig struct {
	Concurrency int
	MaxRetries  int
	DumpDir     string
	LedgerPath  string
	ScratchDir  string
	DryRun      bool
}

// Global is the shared instance of GlobalFlags
var Global = GlobalFlags{}
