package cmd

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"sqlgate/cli/internal/assistant"
	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/gate"
	"sqlgate/cli/internal/history"
	"sqlgate/cli/internal/keychain"
	"sqlgate/cli/internal/llm"
	"sqlgate/cli/internal/sqlexec"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dsnSource describes where a DSN was found, for dbinfo and debug logs.
type dsnSource string

const (
	sourceFlag        dsnSource = "--dsn flag"
	sourceEnv         dsnSource = "SQLGATE_DSN environment variable"
	sourceDatabaseURL dsnSource = "DATABASE_URL environment variable"
	sourceConfig      dsnSource = "config file"
	sourceKeychain    dsnSource = "OS keychain"
)

var errNoDatabase = errors.New(errors.ConfigInvalid,
	"no database configured; run 'sqlgate connect' or set SQLGATE_DSN")

// resolveDSN finds the database DSN.
// Precedence: --dsn > SQLGATE_DSN > DATABASE_URL > config file > keychain.
func resolveDSN(cmd *cobra.Command) (string, dsnSource, error) {
	if f := cmd.Flags().Lookup("dsn"); f != nil && f.Changed && strings.TrimSpace(f.Value.String()) != "" {
		return strings.TrimSpace(f.Value.String()), sourceFlag, nil
	}
	if v := strings.TrimSpace(os.Getenv("SQLGATE_DSN")); v != "" {
		return v, sourceEnv, nil
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v, sourceDatabaseURL, nil
	}
	if cfg != nil && strings.TrimSpace(cfg.DB.DSN) != "" {
		return strings.TrimSpace(cfg.DB.DSN), sourceConfig, nil
	}

	km, err := keychain.GetManager()
	if err != nil {
		logger.Debug("keychain unavailable", zap.Error(err))
		return "", "", errNoDatabase
	}
	v, err := km.LoadDBDSN()
	if err != nil {
		if !stderrors.Is(err, keychain.ErrNotFound) {
			logger.Debug("keychain read failed", zap.Error(err))
		}
		return "", "", errNoDatabase
	}
	return v, sourceKeychain, nil
}

// resolveAPIKey finds the model API key in the environment or the keychain.
func resolveAPIKey() (string, error) {
	for _, name := range []string{"OPENROUTER_API_KEY", "SQLGATE_MODEL_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}
	if km, err := keychain.GetManager(); err == nil {
		if v, err := km.LoadAPIKey(); err == nil {
			return v, nil
		}
	}
	return "", errors.New(errors.ConfigInvalid,
		"no model API key; run 'sqlgate login' or set OPENROUTER_API_KEY")
}

// openBackend resolves the DSN and connects to the database.
func openBackend(cmd *cobra.Command) (sqlexec.Backend, error) {
	raw, source, err := resolveDSN(cmd)
	if err != nil {
		return nil, err
	}
	logger.Debug("opening database", zap.String("source", string(source)))
	b, err := sqlexec.Open(cmd.Context(), raw, logger)
	if err != nil {
		return nil, errors.Wrap(errors.SQLError, "connect to database", err)
	}
	return b, nil
}

func newModel() (llm.Model, error) {
	key, err := resolveAPIKey()
	if err != nil {
		return nil, err
	}
	return llm.NewOpenRouter(llm.Config{
		APIKey:            key,
		BaseURL:           cfg.Model.BaseURL,
		Model:             cfg.Model.Name,
		Temperature:       cfg.Model.Temperature,
		MaxTokens:         cfg.Model.MaxTokens,
		Timeout:           cfg.ModelTimeout(),
		RequestsPerSecond: cfg.Model.RequestsPerSecond,
	}, logger), nil
}

func openHistory() (*history.Store, error) {
	path, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path, cfg.History.MaxEntries)
}

// chatSession bundles everything a conversation needs.
type chatSession struct {
	backend   sqlexec.Backend
	gate      *gate.Gate
	store     *history.Store
	assistant *assistant.Assistant
	schema    string
	tables    []string
}

func (s *chatSession) Close() error { return s.backend.Close() }

// newChatSession connects to the database, describes its schema and builds
// an assistant recording into the history store.
func newChatSession(ctx context.Context, cmd *cobra.Command) (*chatSession, error) {
	model, err := newModel()
	if err != nil {
		return nil, err
	}
	store, err := openHistory()
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(cmd)
	if err != nil {
		return nil, err
	}

	schema, err := backend.Describe(ctx)
	if err != nil {
		_ = backend.Close()
		return nil, errors.Wrap(errors.SQLError, "describe schema", err)
	}
	tables, err := backend.Tables(ctx)
	if err != nil {
		_ = backend.Close()
		return nil, errors.Wrap(errors.SQLError, "list tables", err)
	}

	g := gate.New(backend, cfg.Gate(), logger)
	opts := assistant.Options{
		ContextTurns:      cfg.History.ContextTurns,
		ExampleTurns:      cfg.History.ExampleTurns,
		StoredResultChars: cfg.History.StoredResultChars,
	}
	return &chatSession{
		backend:   backend,
		gate:      g,
		store:     store,
		assistant: assistant.New(model, g, store, schema, tables, opts, logger),
		schema:    schema,
		tables:    tables,
	}, nil
}

// ask runs one turn with the stored history as context.
func (s *chatSession) ask(ctx context.Context, question string) (assistant.Turn, error) {
	recent := s.store.Recent(max(cfg.History.ContextTurns, cfg.History.ExampleTurns))
	return s.assistant.Ask(ctx, question, recent)
}
