package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/domain"
	"docrag/internal/embedding/hashing"
	"docrag/internal/embedding/ollama"
	"docrag/internal/embedding/openai"
	"docrag/internal/logging"
	"docrag/internal/metrics"
	"docrag/internal/service"
	"docrag/internal/source"
	"docrag/internal/summarizer"
	"docrag/internal/tui"
	"docrag/internal/vectorstore"
	"docrag/internal/vectorstore/memory"
	"docrag/internal/watch"
)

const usage = `Usage: docrag [--config=config.yaml] <command> [args]

Commands:
  ingest <path|glob>...   index files and directories, then save the snapshot
  query <question>        answer one question from the saved index
  watch <dir>...          ingest new files as they appear
  tui [path|glob]...      interactive search (default)
  status                  print the index status line
`

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var topK int
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/docrag/config.yaml if not provided)")
	flag.IntVar(&topK, "k", 0, "Number of results to retrieve (0 uses retrieval.top_k)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}

	cmd, args := "tui", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	logOut := os.Stderr
	if cmd == "tui" {
		// keep log lines off the alternate screen
		logOut, err = os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			logOut = os.Stderr
		}
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(cfg.Metrics.Namespace)
	app, err := newApp(cfg, log, m)
	if err != nil {
		log.WithError(err).Fatal("init failed")
	}

	err = app.run(ctx, cmd, args, topK)
	if cfg.Metrics.Textfile != "" {
		if werr := m.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			log.WithError(werr).Warn("write metrics textfile")
		}
	}
	if err != nil {
		log.WithError(err).Error(cmd + " failed")
		stop()
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.AppConfig
	log    *logrus.Logger
	svc    *service.RAGServiceImpl
	loader *source.Loader
}

func newApp(cfg *config.AppConfig, log *logrus.Logger, m *metrics.Metrics) (*app, error) {
	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg.Summarizer)
	if err != nil {
		return nil, err
	}
	metric, err := vectorstore.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	st := memory.NewStorage(memory.WithMetric(metric), memory.WithDisallowEmptyBatch(cfg.Index.DisallowEmptyBatch))
	loader := source.NewLoader(log)
	if err := loader.SetPattern(cfg.Source.Pattern); err != nil {
		return nil, err
	}

	svc, err := service.NewRAGService(ch, emb, st, gen, loader, service.Options{
		DefaultTopK: cfg.Retrieval.TopK,
		MinScore:    cfg.Retrieval.MinScore,
		Logger:      log,
		Metrics:     m,
	})
	if err != nil {
		return nil, err
	}
	if err := svc.Load(cfg.Index.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load index %s: %w", cfg.Index.Path, err)
	}
	return &app{cfg: cfg, log: log, svc: svc, loader: loader}, nil
}

func newChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	case "recursive", "":
		return chunker.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	default:
		return nil, fmt.Errorf("%w: unknown chunker: %s", domain.ErrConfiguration, cfg.Type)
	}
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		return openai.NewClient(openai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			Dimension:   cfg.OpenAI.Dimension,
			Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize:   cfg.OpenAI.BatchSize,
			Concurrency: cfg.OpenAI.Concurrency,
			RateLimit:   cfg.OpenAI.RateLimit,
		})
	case "ollama":
		return ollama.NewEmbedder(ollama.Config{
			BaseURL:     cfg.Ollama.BaseURL,
			Model:       cfg.Ollama.Model,
			Dimension:   cfg.Ollama.Dimension,
			Concurrency: cfg.Ollama.Concurrency,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedder: %s", domain.ErrConfiguration, cfg.Type)
	}
}

func newGenerator(cfg config.SummarizerConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(cfg.MaxSentences), nil
	case "openai":
		return summarizer.NewChatGenerator(summarizer.ChatConfig{
			BaseURL:        cfg.OpenAI.BaseURL,
			APIKeyEnv:      cfg.OpenAI.APIKeyEnv,
			Model:          cfg.OpenAI.Model,
			Timeout:        time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxTokens:      cfg.OpenAI.MaxTokens,
			Temperature:    cfg.OpenAI.Temperature,
			MaxPromptChars: cfg.OpenAI.MaxPromptChars,
		})
	default:
		return nil, fmt.Errorf("%w: unknown summarizer: %s", domain.ErrConfiguration, cfg.Type)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string, topK int) error {
	switch cmd {
	case "ingest":
		if len(args) == 0 {
			return errors.New("ingest needs at least one path")
		}
		return a.ingest(ctx, args)
	case "query":
		if len(args) == 0 {
			return errors.New("query needs a question")
		}
		return a.query(ctx, joinArgs(args), topK)
	case "watch":
		if len(args) == 0 {
			return errors.New("watch needs at least one directory")
		}
		return a.watch(ctx, args)
	case "status":
		fmt.Println(a.svc.Status())
		return nil
	case "tui":
		if len(args) > 0 {
			if err := a.ingest(ctx, args); err != nil {
				return err
			}
		}
		p := tea.NewProgram(tui.New(ctx, a.svc, a.svc.Status().String(), topK), tea.WithAltScreen(), tea.WithContext(ctx))
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) ingest(ctx context.Context, paths []string) error {
	report, err := a.svc.IngestPaths(ctx, paths)
	printReport(report)
	if err != nil {
		return err
	}
	if report.Documents == 0 {
		return nil
	}
	return a.svc.Save(a.cfg.Index.Path)
}

func (a *app) query(ctx context.Context, q string, topK int) error {
	answer, err := a.svc.SearchAndSummarize(ctx, q, topK)
	if err != nil {
		return err
	}
	fmt.Println(answer.Text)
	if len(answer.Results) > 0 {
		fmt.Println()
	}
	for i, r := range answer.Results {
		src := r.Chunk.Metadata[domain.MetaSource]
		if src == "" {
			src = r.Chunk.SourceID
		}
		fmt.Printf("[%d] %.3f %s\n", i+1, r.Score, src)
	}
	return nil
}

func (a *app) watch(ctx context.Context, dirs []string) error {
	w := watch.New(a.svc, watch.Options{
		Logger:   a.log,
		Debounce: time.Duration(a.cfg.Watch.DebounceMillis) * time.Millisecond,
		Supports: a.loader.Supports,
		AfterIngest: func(report domain.IngestReport) error {
			if report.Documents == 0 {
				return nil
			}
			return a.svc.Save(a.cfg.Index.Path)
		},
	})
	indexed := map[string]struct{}{}
	for _, src := range a.svc.IndexedSources() {
		indexed[filepath.Clean(src)] = struct{}{}
	}
	files, errs := a.loader.Resolve(dirs)
	for _, err := range errs {
		a.log.WithError(err).Warn("resolve")
	}
	var fresh []string
	for _, f := range files {
		if _, ok := indexed[f]; !ok {
			fresh = append(fresh, f)
		}
	}
	if len(fresh) > 0 {
		if err := a.ingest(ctx, fresh); err != nil {
			return err
		}
	}
	w.MarkIngested(files...)
	err := w.Run(ctx, dirs)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printReport(r domain.IngestReport) {
	fmt.Printf("Indexed %d documents, %d chunks\n", r.Documents, r.Chunks)
	for _, err := range r.Failures {
		fmt.Printf("  failed: %v\n", err)
	}
}

func joinArgs(args []string) string {
	q := args[0]
	for _, a := range args[1:] {
		q += " " + a
	}
	return q
}
