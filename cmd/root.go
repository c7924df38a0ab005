package cmd

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mockmate/mockmate/internal/ai/gemini"
	"github.com/mockmate/mockmate/internal/interview"
	"github.com/mockmate/mockmate/internal/retrieval"
	"github.com/mockmate/mockmate/internal/sandbox"
	"github.com/mockmate/mockmate/internal/secrets"
)

const (
	app = "mockmate"

	defaultRole = "Generative AI Engineer"
)

type Config struct {
	Server    *ServerConfig    `mapstructure:"server"`
	AI        *AIConfig        `mapstructure:"ai"`
	Sandbox   *SandboxConfig   `mapstructure:"sandbox"`
	Interview *InterviewConfig `mapstructure:"interview"`
}

type ServerConfig struct {
	Listen     string        `mapstructure:"listen"`
	AudioDir   string        `mapstructure:"audio-dir"`
	SessionTTL time.Duration `mapstructure:"session-ttl"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile  string `mapstructure:"api-key-file"`
	Model       string `mapstructure:"model"`
	SpeechModel string `mapstructure:"speech-model"`
	Voice       string `mapstructure:"voice"`
}

type SandboxConfig struct {
	URL      string `mapstructure:"url"`
	Language string `mapstructure:"language"`
}

type InterviewConfig struct {
	Role string `mapstructure:"role"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "mockmate conducts automated technical interviews over voice, text and code",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is mockmate.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// A missing config file is fine, everything has a default or an env
	// binding. A present but unparseable one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}
	if config.Server.Listen == "" {
		config.Server.Listen = ":8000"
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Interview == nil {
		config.Interview = &InterviewConfig{}
	}
	if config.Interview.Role == "" {
		config.Interview.Role = defaultRole
	}

	return config, nil
}

// newGeminiClient resolves the API key and builds the shared Gemini client.
// A missing credential is fatal at startup, not per request.
func newGeminiClient(ctx context.Context, cfg *GeminiConfig) (*gemini.Client, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	return gemini.New(ctx, apiKey, cfg.Model,
		gemini.WithSpeechModel(cfg.SpeechModel),
		gemini.WithVoice(cfg.Voice),
	)
}

// newOrchestrator assembles the turn pipeline shared by serve and console.
func newOrchestrator(config *Config, client *gemini.Client, store *retrieval.Store, logger *zap.Logger) *interview.Orchestrator {
	runner := sandbox.New(logger)
	if config.Sandbox != nil {
		if config.Sandbox.URL != "" {
			runner.APIURL = config.Sandbox.URL
		}
		if config.Sandbox.Language != "" {
			runner.Language = config.Sandbox.Language
		}
	}

	return interview.NewOrchestrator(interview.Deps{
		Runner:    runner,
		Retriever: store,
		Generator: client,
		Logger:    logger,
	})
}
