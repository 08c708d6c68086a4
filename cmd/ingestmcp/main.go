// Command ingestmcp exposes the Query API as an MCP tool (query_collection,
// §6 supplement) over stdio, separate from cmd/ingestd's HTTP listener —
// the same split the Manifold stack keeps between its HTTP agent daemon and
// its own stdio MCP server.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"ingestpipe/internal/bootstrap"
	"ingestpipe/internal/config"
	"ingestpipe/internal/observability"
	"ingestpipe/internal/query"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}
	observability.InitLogger("", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect backends")
	}
	defer res.Close()

	querySvc := query.New(res.VectorResolver, cfg.Embedding, cfg.ImageEmbedding, res.Vision, res.Transcriber)

	srv := mcp.NewServer(&mcp.Implementation{Name: "ingestpipe", Version: "1.0.0"}, nil)
	querySvc.RegisterMCP(srv)

	log.Info().Msg("ingestmcp serving query_collection over stdio")
	if err := srv.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("mcp server failed")
	}
}
