package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hyperknow/hyperknow/types"
)

const (
	configName = ".hyperknow"
	envPrefix  = "HYPERKNOW"

	defaultBaseURL = "https://backend-ai-cloud-explains.onrender.com"
)

// GlobalAppConfig holds the global application configuration instance.
var GlobalAppConfig types.AppConfig

// validate is a single validator instance; it caches struct info.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// validateAppConfig performs validation on the AppConfig struct.
func validateAppConfig(config *types.AppConfig) error {
	return validate.Struct(config)
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	// Load .env file first if present. It's okay if it doesn't exist.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix) // e.g., HYPERKNOW_VERBOSE
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfgFileFlag := viper.GetString("config")
	if cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)       // $HOME/.hyperknow.yaml
		viper.AddConfigPath(".")        // ./.hyperknow.yaml
		viper.SetConfigName(configName)
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if cfgFileFlag != "" {
				fmt.Fprintln(os.Stderr, "Error: Specified config file not found:", cfgFileFlag)
			} else if viper.GetBool("verbose") {
				fmt.Fprintln(os.Stderr, "No config file found. Using defaults and environment variables.")
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
		}
	}

	// Set default values
	viper.SetDefault("api.baseUrl", defaultBaseURL)
	viper.SetDefault("api.timeout", 30*time.Second)

	viper.SetDefault("polling.contentInterval", 5*time.Second)
	viper.SetDefault("polling.sectionInterval", 3*time.Second)
	viper.SetDefault("polling.maxBackoff", 60*time.Second)
	viper.SetDefault("polling.stallTimeout", 5*time.Minute)

	viper.SetDefault("data.dir", defaultDataDir())
	viper.SetDefault("data.sessionFile", "session.json")
	viper.SetDefault("data.sessionFormat", "json")
	viper.SetDefault("data.historyFile", "history.db")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.apiKey", "")
	viper.SetDefault("telemetry.endpoint", "")

	if err := viper.Unmarshal(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling config: %s\n", err)
		os.Exit(1)
	}

	if err := validateAppConfig(&GlobalAppConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %s\n", err)
		os.Exit(1)
	}
}

// GetConfig returns a pointer to the global types.AppConfig instance.
func GetConfig() *types.AppConfig {
	return &GlobalAppConfig
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hyperknow"
	}
	return filepath.Join(home, ".hyperknow")
}
