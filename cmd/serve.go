package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mockmate/mockmate/internal/logger"
	"github.com/mockmate/mockmate/internal/retrieval"
	"github.com/mockmate/mockmate/internal/server"
	"github.com/mockmate/mockmate/internal/speech"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interview HTTP server",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "listen address (default :8000)")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve(_ *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting mockmate", zap.String("version", version))

	client, err := newGeminiClient(ctx, config.AI.Gemini)
	if err != nil {
		logger.Fatal(
			"building gemini client",
			zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY_FILE, GEMINI_API_KEY or the 'ai.gemini.api-key-file' config key"),
		)
	}

	store := retrieval.NewStore(logger)
	orchestrator := newOrchestrator(config, client, store, logger)
	speechSvc := speech.NewService(client, logger)

	srv, err := server.New(server.Config{
		Listen:      config.Server.Listen,
		AudioDir:    config.Server.AudioDir,
		DefaultRole: config.Interview.Role,
		SessionTTL:  config.Server.SessionTTL,
	}, server.Deps{
		Orchestrator: orchestrator,
		Retrieval:    store,
		Transcriber:  speechSvc,
		Synthesizer:  speechSvc,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("building http server", zap.Error(err))
	}

	if err := srv.Start(); err != nil {
		logger.Fatal("http server stopped", zap.Error(err))
	}
}
