package config

// EnvOverrides holds configuration values sourced from environment
// variables, the third layer of the four-layer override chain (defaults ->
// file -> env -> CLI flags).
type EnvOverrides struct {
	ConfigPath string
}

// CLIOverrides holds configuration values sourced from command-line flags,
// the final and highest-priority layer of the override chain.
type CLIOverrides struct {
	ConfigPath string
	Direction  string
	Strategy   string
}

// LoadEnvOverrides reads the environment variables shadowsyncd recognizes.
func LoadEnvOverrides(getenv func(string) string) EnvOverrides {
	return EnvOverrides{
		ConfigPath: getenv("SHADOWSYNCD_CONFIG"),
	}
}
