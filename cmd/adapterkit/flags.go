package main

import "github.com/urfave/cli/v2"

// Global flags, readable from every command.
var (
	// ConfigFlag names a YAML or JSON settings file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Settings file (YAML or JSON); defaults apply when omitted",
		EnvVars: []string{"ADAPTERKIT_CONFIG"},
	}

	// LogLevelFlag sets the log level: debug, info, warn, error.
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
		Value: "warn",
	}

	// FormatFlag selects output format: json, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, yaml",
	}
)

func globalFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, LogLevelFlag, FormatFlag}
}

// tagFlag selects tags by ID or name. Empty means every simulated tag.
func tagFlag() *cli.StringSliceFlag {
	return &cli.StringSliceFlag{
		Name:    "tag",
		Aliases: []string{"t"},
		Usage:   "Tag ID or name (repeatable); all tags when omitted",
	}
}
