package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"domain-intel/internal/chunker"
	"domain-intel/internal/config"
	"domain-intel/internal/crawler"
	"domain-intel/internal/embedding"
	"domain-intel/internal/extractor"
	"domain-intel/internal/fetcher"
	"domain-intel/internal/llm"
	"domain-intel/internal/session"
	"domain-intel/internal/vectorstore"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	embedder := embedding.NewService(cfg.EmbedLLM)
	store, err := vectorstore.New(cfg.VectorStore, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}

	renderer := fetcher.NewChromeRenderer(cfg.Crawler.RenderTimeout(), cfg.Crawler.UserAgent)
	pages := fetcher.New(cfg.Crawler.FetchTimeout(), cfg.Crawler.UserAgent, renderer)
	extract := extractor.New(cfg.Crawler.MaxContentLength)

	manager := session.NewManager(&session.Deps{
		Store:      store,
		Crawler:    crawler.New(pages, extract, cfg.Crawler),
		Generator:  llm.NewService(cfg.ChatLLM),
		WebChunker: chunker.New(cfg.WebChunking.ChunkSize, cfg.WebChunking.ChunkOverlap),
		DocChunker: chunker.New(cfg.DocChunking.ChunkSize, cfg.DocChunking.ChunkOverlap),
		Chat:       cfg.Chat,
	})

	srv := newServer(manager)
	log.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
	if err := http.ListenAndServe(cfg.Server.Addr, srv.routes()); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
