package types

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/galaxyproject/depotsync/util/common"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

type ListerType string

var (
	QUAY  ListerType = "QUAY"
	OCI   ListerType = "OCI"
	DEPOT ListerType = "DEPOT"
	DIR   ListerType = "DIR"
)

type ConverterType string

var (
	SINGULARITY ConverterType = "SINGULARITY"
	OCI_TARBALL ConverterType = "OCI_TARBALL"
)

type TransferType string

var (
	RSYNC     TransferType = "RSYNC"
	SSH       TransferType = "SSH"
	DIRECTORY TransferType = "DIR"
)

// DefaultRun is used for every run setting the config file leaves out.
var DefaultRun = RunConfig{
	Concurrency: 1,
	MaxRetries:  1,
	ItemTimeout: 2 * time.Hour,
	RetryDelay:  10 * time.Second,
}

// Config represents the top-level configuration structure
type Config struct {
	Version   string          `yaml:"version" toml:"version"`
	Run       RunConfig       `yaml:"run" toml:"run"`
	Source    ListerConfig    `yaml:"source" toml:"source"`
	Dest      ListerConfig    `yaml:"destination" toml:"destination"`
	Converter ConverterConfig `yaml:"converter" toml:"converter"`
	Transfer  TransferConfig  `yaml:"transfer" toml:"transfer"`
	Scratch   ScratchConfig   `yaml:"scratch" toml:"scratch"`
	Ledger    LedgerConfig    `yaml:"ledger" toml:"ledger"`
	Filters   FiltersConfig   `yaml:"filters" toml:"filters"`
	DumpDir   string          `yaml:"dumpDir" toml:"dumpDir"`
	UserAgent string          `yaml:"userAgent" toml:"userAgent"`
}

// RunConfig holds the scheduler settings of one reconciliation pass
type RunConfig struct {
	Concurrency int           `yaml:"concurrency" toml:"concurrency"`
	MaxRetries  int           `yaml:"maxRetries" toml:"maxRetries"`
	ItemTimeout time.Duration `yaml:"itemTimeout" toml:"itemTimeout"`
	RunTimeout  time.Duration `yaml:"runTimeout" toml:"runTimeout"`
	RetryDelay  time.Duration `yaml:"retryDelay" toml:"retryDelay"`
	DryRun      bool          `yaml:"dryRun" toml:"dryRun"`
}

// ListerConfig describes one side of the mirror
type ListerConfig struct {
	Type        ListerType        `yaml:"type" toml:"type"`
	Endpoint    string            `yaml:"endpoint" toml:"endpoint"`
	URLs        []string          `yaml:"urls" toml:"urls"`
	Path        string            `yaml:"path" toml:"path"`
	Namespace   string            `yaml:"namespace" toml:"namespace"`
	Registry    string            `yaml:"registry" toml:"registry"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Insecure    bool              `yaml:"insecure" toml:"insecure"`
	// Suffix is stripped from destination file names before diffing, e.g. ".tar".
	Suffix string `yaml:"suffix" toml:"suffix"`
	// MaxConcurrency and MaxPerSecond bound the per-repository requests of API listers.
	MaxConcurrency int `yaml:"maxConcurrency" toml:"maxConcurrency"`
	MaxPerSecond   int `yaml:"maxPerSecond" toml:"maxPerSecond"`
}

// ConverterConfig selects the tool that turns a source image into the mirrored format
type ConverterConfig struct {
	Type   ConverterType     `yaml:"type" toml:"type"`
	Binary string            `yaml:"binary" toml:"binary"`
	Args   []string          `yaml:"args" toml:"args"`
	Env    map[string]string `yaml:"env" toml:"env"`
}

// TransferConfig selects how finished artifacts reach the destination store
type TransferConfig struct {
	Type TransferType `yaml:"type" toml:"type"`
	// Target is "user@host:/path/" for rsync, "/path" for ssh and dir.
	Target         string   `yaml:"target" toml:"target"`
	Host           string   `yaml:"host" toml:"host"`
	Port           int      `yaml:"port" toml:"port"`
	User           string   `yaml:"user" toml:"user"`
	IdentityFile   string   `yaml:"identityFile" toml:"identityFile"`
	KnownHostsFile string   `yaml:"knownHostsFile" toml:"knownHostsFile"`
	Binary         string   `yaml:"binary" toml:"binary"`
	Args           []string `yaml:"args" toml:"args"`
}

// ScratchConfig bounds the local disk used while converting
type ScratchConfig struct {
	Dir    string `yaml:"dir" toml:"dir"`
	Budget string `yaml:"budget" toml:"budget"`
	// PauseCeiling caps how long admission stays paused after a disk exhaustion.
	PauseCeiling time.Duration `yaml:"pauseCeiling" toml:"pauseCeiling"`

	budgetBytes int64
}

// BudgetBytes is the parsed Budget, 0 when unlimited.
func (s ScratchConfig) BudgetBytes() int64 {
	return s.budgetBytes
}

type LedgerConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// FiltersConfig restricts which source artifacts are mirrored
type FiltersConfig struct {
	// Denylist is a file with one entry per line.
	Denylist string   `yaml:"denylist" toml:"denylist"`
	Deny     []string `yaml:"deny" toml:"deny"`
	// DeferPrefixes moves matching names to the end of the work set.
	DeferPrefixes []string `yaml:"deferPrefixes" toml:"deferPrefixes"`
}

// CredentialsConfig defines the credential configuration
type CredentialsConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password,omitempty" toml:"password"`
	Token    string `yaml:"token,omitempty" toml:"token"`
}

// LoadConfig loads the configuration from a YAML or TOML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Expand environment variables in the file
	expanded := os.Expand(string(data), os.Getenv)

	config := Config{Run: DefaultRun}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyDefaults fills every unset value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Run.Concurrency == 0 {
		c.Run.Concurrency = DefaultRun.Concurrency
	}
	if c.Run.ItemTimeout == 0 {
		c.Run.ItemTimeout = DefaultRun.ItemTimeout
	}
	c.Source.Type = ListerType(strings.ToUpper(string(c.Source.Type)))
	c.Dest.Type = ListerType(strings.ToUpper(string(c.Dest.Type)))
	c.Converter.Type = ConverterType(strings.ToUpper(string(c.Converter.Type)))
	c.Transfer.Type = TransferType(strings.ToUpper(string(c.Transfer.Type)))
	if c.Source.Type == QUAY {
		if c.Source.Endpoint == "" {
			c.Source.Endpoint = "https://quay.io/api/v1/"
		}
		if c.Source.Registry == "" {
			c.Source.Registry = "quay.io"
		}
		if c.Source.Namespace == "" {
			c.Source.Namespace = "biocontainers"
		}
	}
	if c.Source.MaxConcurrency == 0 {
		c.Source.MaxConcurrency = 10
	}
	if c.Source.MaxPerSecond == 0 {
		c.Source.MaxPerSecond = 10
	}
	if c.Converter.Type == SINGULARITY && c.Converter.Binary == "" {
		c.Converter.Binary = "singularity"
	}
	if c.Transfer.Type == RSYNC && c.Transfer.Binary == "" {
		c.Transfer.Binary = "rsync"
	}
	if c.Transfer.Type == SSH && c.Transfer.Port == 0 {
		c.Transfer.Port = 22
	}
	if c.Scratch.Dir == "" {
		c.Scratch.Dir = filepath.Join(os.TempDir(), "depotsync")
	}
	if c.Scratch.PauseCeiling == 0 {
		c.Scratch.PauseCeiling = 5 * time.Minute
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = filepath.Join(".depotsync", "ledger.jsonl")
	}
	if c.Filters.DeferPrefixes == nil {
		c.Filters.DeferPrefixes = []string{"bioconductor"}
	}
	if c.UserAgent == "" {
		c.UserAgent = "depotsync"
	}
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Run.Concurrency <= 0 {
		return errors.NewValidationError("run.concurrency", "must be greater than 0")
	}
	if c.Run.MaxRetries < 0 {
		return errors.NewValidationError("run.maxRetries", "cannot be negative")
	}
	if c.Run.ItemTimeout < 0 || c.Run.RunTimeout < 0 || c.Run.RetryDelay < 0 {
		return errors.NewValidationError("run", "timeouts cannot be negative")
	}

	if err := validateLister("source", c.Source, QUAY, OCI); err != nil {
		return err
	}
	if err := validateLister("destination", c.Dest, DEPOT, DIR); err != nil {
		return err
	}

	switch c.Converter.Type {
	case SINGULARITY, OCI_TARBALL:
	case "":
		return errors.NewValidationError("converter.type", "cannot be empty")
	default:
		return errors.NewValidationError("converter.type", fmt.Sprintf("unsupported converter %s", c.Converter.Type))
	}

	switch c.Transfer.Type {
	case RSYNC, DIRECTORY:
		if c.Transfer.Target == "" {
			return errors.NewValidationError("transfer.target", "cannot be empty")
		}
	case SSH:
		if c.Transfer.Host == "" || c.Transfer.User == "" || c.Transfer.Target == "" {
			return errors.NewValidationError("transfer", "ssh transfer needs host, user and target")
		}
		if c.Transfer.IdentityFile == "" {
			return errors.NewValidationError("transfer.identityFile", "ssh transfer needs an identity file")
		}
	case "":
		return errors.NewValidationError("transfer.type", "cannot be empty")
	default:
		return errors.NewValidationError("transfer.type", fmt.Sprintf("unsupported transfer %s", c.Transfer.Type))
	}

	if c.Scratch.Budget != "" {
		b, err := common.ParseSize(c.Scratch.Budget)
		if err != nil {
			return errors.NewValidationError("scratch.budget", err.Error())
		}
		c.Scratch.budgetBytes = b
	}
	return nil
}

func validateLister(side string, l ListerConfig, allowed ...ListerType) error {
	if l.Type == "" {
		return errors.NewValidationError(side+".type", "cannot be empty")
	}
	supported := false
	for _, t := range allowed {
		if l.Type == t {
			supported = true
		}
	}
	if !supported {
		return errors.NewValidationError(side+".type", fmt.Sprintf("unsupported %s lister %s", side, l.Type))
	}
	switch l.Type {
	case QUAY, OCI:
		if l.Registry == "" && l.Endpoint == "" {
			return errors.NewValidationError(side+".registry", "registry or endpoint must be set")
		}
	case DEPOT:
		if len(l.URLs) == 0 {
			return errors.NewValidationError(side+".urls", "at least one depot url must be defined")
		}
	case DIR:
		if l.Path == "" {
			return errors.NewValidationError(side+".path", "cannot be empty")
		}
	}

	// If using username auth, password should also be provided
	if l.Credentials.Username != "" && l.Credentials.Password == "" && l.Credentials.Token == "" {
		return errors.NewValidationError(side+".credentials", "password must be provided when using username authentication")
	}
	return nil
}
