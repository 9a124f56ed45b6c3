// Package config loads usbsas-core's TOML configuration file (spec §6)
// through koanf, the same layered-config approach nasa-jpl/golaborate
// uses for its instrument servers: one provider reading a single file,
// one parser for the format, unmarshaled into a typed struct so the rest
// of the program never touches koanf directly.
package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/usbsas/usbsas-core/internal/constants"
	"github.com/usbsas/usbsas-core/internal/filter"
)

// WorkerBinaries maps a worker name ("device_reader", "fs_builder", ...)
// to the path of its compiled binary, the supervisor's spawn table
// (spec §3: "a fixed roster of worker binaries").
type WorkerBinaries map[string]string

// AnalyzerConfig configures the antivirus upload/poll/download cycle
// (spec §4.7, §6): which destination kinds get analysed is a per-kind
// toggle, since a Command destination running entirely offline has no
// reason to round-trip through the analyser.
type AnalyzerConfig struct {
	URL             string        `koanf:"url"`
	KerberosService string        `koanf:"krb_service_name"`
	KeytabPath      string        `koanf:"keytab_path"`
	PollInterval    time.Duration `koanf:"poll_interval"`
	Timeout         time.Duration `koanf:"timeout"`
	AnalyzeUSB      bool          `koanf:"analyze_usb"`
	AnalyzeNet      bool          `koanf:"analyze_net"`
	AnalyzeCmd      bool          `koanf:"analyze_cmd"`
}

// NetworkDest describes one `[[networks]]` destination entry or the
// `[source_network]` entry (spec §6): a name/URL pair the frontend offers
// as a Net descriptor, plus the optional Kerberos service name its HTTP
// requests authenticate against.
type NetworkDest struct {
	Description     string `koanf:"description"`
	LongDescription string `koanf:"longdescr"`
	URL             string `koanf:"url"`
	KerberosService string `koanf:"krb_service_name"`
}

// CommandDest describes the `[command]` destination entry (spec §6): a
// command-line destination, %SOURCE_FILE% substituted with the built
// tar's path at transfer time (see descriptor.KindCommand).
type CommandDest struct {
	Description     string   `koanf:"description"`
	LongDescription string   `koanf:"longdescr"`
	CommandBin      string   `koanf:"command_bin"`
	CommandArgs     []string `koanf:"command_args"`
}

// PostCopyConfig describes the optional `[post_copy]` command run after a
// transfer completes (spec §4.4.1 Stage D, §6).
type PostCopyConfig struct {
	Description string   `koanf:"description"`
	CommandBin  string   `koanf:"command_bin"`
	CommandArgs []string `koanf:"command_args"`
}

// ReportConfig controls where a finished transfer's report is persisted
// in addition to the local history store (spec §6).
type ReportConfig struct {
	WriteDest bool   `koanf:"write_dest"`
	WriteLocal string `koanf:"write_local"`
}

// USBPortAccesses restricts which physical USB topology paths may serve
// as a transfer's source or destination (spec §6).
type USBPortAccesses struct {
	PortsSrc [][]int `koanf:"ports_src"`
	PortsDst [][]int `koanf:"ports_dst"`
}

// FilterRule mirrors filter.Rule in a TOML-friendly shape (string enums
// instead of the Mode/Action int types).
type FilterRule struct {
	Mode    string `koanf:"mode"`    // "exact" | "start" | "end" | "contain"
	Pattern string `koanf:"pattern"`
	Action  string `koanf:"action"` // "reject" | "filter"
}

// Config is the fully parsed contents of the usbsas TOML config file
// (spec §6). Zero-value timeouts/intervals are replaced with the
// internal/constants defaults at Load time.
type Config struct {
	BinPath      string         `koanf:"bin_path"`
	OutDirectory string         `koanf:"out_directory"`
	SocketPath   string         `koanf:"socket_path"`
	Sandbox      string         `koanf:"sandbox"` // "seccomp" | "fs_restrict"
	Workers      WorkerBinaries `koanf:"workers"`

	WindowTitle string `koanf:"window_title"`
	MenuImg     string `koanf:"menu_img"`
	Lang        string `koanf:"lang"`

	Analyzer       AnalyzerConfig  `koanf:"analyzer"`
	Networks       []NetworkDest   `koanf:"networks"`
	SourceNetwork  NetworkDest     `koanf:"source_network"`
	Command        CommandDest     `koanf:"command"`
	PostCopy       PostCopyConfig  `koanf:"post_copy"`
	Report         ReportConfig    `koanf:"report"`
	USBPorts       USBPortAccesses `koanf:"usb_port_accesses"`
	Filters        []FilterRule    `koanf:"filters"`
	KeepTmpFiles   bool            `koanf:"keep_tmp_files"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Analyzer.PollInterval == 0 {
		cfg.Analyzer.PollInterval = constants.DefaultAnalyzePollInterval
	}
	if cfg.Analyzer.Timeout == 0 {
		cfg.Analyzer.Timeout = constants.DefaultAnalyzeTimeout
	}
	if cfg.Sandbox == "" {
		cfg.Sandbox = "seccomp"
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/run/usbsas/usbsas.sock"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
}

// FilterSet converts the TOML-shaped rules into the filter package's
// evaluation form, rejecting any rule whose mode/action didn't match a
// known keyword rather than silently treating it as a no-op.
func (c *Config) FilterSet() (filter.Set, error) {
	set := make(filter.Set, 0, len(c.Filters))
	for i, r := range c.Filters {
		var mode filter.Mode
		switch r.Mode {
		case "exact":
			mode = filter.ModeExact
		case "start":
			mode = filter.ModeStart
		case "end":
			mode = filter.ModeEnd
		case "contain":
			mode = filter.ModeContain
		default:
			return nil, fmt.Errorf("config: filters[%d]: unknown mode %q", i, r.Mode)
		}
		var action filter.Action
		switch r.Action {
		case "reject":
			action = filter.ActionReject
		case "filter":
			action = filter.ActionFilter
		default:
			return nil, fmt.Errorf("config: filters[%d]: unknown action %q", i, r.Action)
		}
		set = append(set, filter.Rule{Mode: mode, Pattern: r.Pattern, Action: action})
	}
	return set, nil
}
