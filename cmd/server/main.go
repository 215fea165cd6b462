package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/clients"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/config"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/research"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/server"
)

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	llm, err := clients.GoogleAi(ctx, cfg)
	if err != nil {
		logger.Error("Failed to init LLM", "error", err)
		os.Exit(1)
	}
	searcher, err := clients.NewGeminiSearcher(ctx, cfg)
	if err != nil {
		logger.Error("Failed to init search client", "error", err)
		os.Exit(1)
	}

	engine := research.NewEngine(cfg, clients.NewLangchainGenerator(llm), searcher, logger)
	svc := server.NewService(engine, logger)
	handler := server.NewHandler(svc, server.NewMCPHandler(server.NewMCPServer(svc)))

	// Web Server Setup
	r := gin.Default()

	// CORS Setup
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id", "Mcp-Protocol-Version"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: false,
	}))

	handler.RegisterRoutes(r)

	logger.Info("Server starting", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
