package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/truthguard/internal/model"
)

// version is overridden at build time with -ldflags "-X ...cli.version=..."
var version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// envAliases binds config keys to the environment names the hosted
// deployment has always used, in addition to TRUTHGUARD_*
var envAliases = map[string][]string{
	"ai.api_key":       nil,
	"ai.base_url":      {"OLLAMA_BASE_URL"},
	"search.api_key":   {"SEARCH_ENGINE_API_KEY"},
	"search.cx":        {"CX"},
	"search.endpoint":  nil,
	"database.url":     {"DATABASE_URL"},
	"redis.url":        {"REDIS_URL"},
	"sentry.dsn":       {"SENTRY_DSN"},
	"http.http_proxy":  {"HTTP_PROXY"},
	"http.https_proxy": {"HTTPS_PROXY"},
	"http.no_proxy":    {"NO_PROXY"},
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "truthguard",
	Short: "TruthGuard - AI-assisted verification of news claims, images and social posts",
	Long: `TruthGuard checks a claim, an image or a social media post against web
search results and asks a generative model for a structured verdict:
a title, a 0-100 truth score, a verdict label, a reason and evidence links.

A verdict is an assessment of the evidence found, not a ruling on the truth.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("truthguard v%s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.truthguard/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (auto, json, console)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if err := setupViper(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		return
	}
	if verbose && viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setupViper registers defaults, environment bindings and the config file
func setupViper(v *viper.Viper, file string) error {
	if err := registerDefaults(v); err != nil {
		return err
	}

	v.SetEnvPrefix("TRUTHGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{"TRUTHGUARD_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(filepath.Join(home, ".truthguard"))
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// registerDefaults feeds DefaultConfig into viper so every key can be
// overridden from the environment
func registerDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig resolves flags, env, file and defaults into one Config
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = os.Getenv(providerKeyEnv(cfg.AI.Provider))
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// providerKeyEnv names the conventional API key variable of each provider
func providerKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic", "claude":
		return "ANTHROPIC_API_KEY"
	case "ollama":
		return ""
	default:
		return "GEMINI_API_KEY"
	}
}
