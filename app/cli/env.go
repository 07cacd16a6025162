package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thunderhead-labs/poktinfo/app/collector"
	"github.com/thunderhead-labs/poktinfo/app/collector/activity"
	"github.com/thunderhead-labs/poktinfo/pkg/config"
	"github.com/thunderhead-labs/poktinfo/pkg/db/postgres/poktinfo"
	"github.com/thunderhead-labs/poktinfo/pkg/height"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
)

// env is what every subcommand starts from.
type env struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	log    *zap.Logger
}

func newLogger(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !verbose
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func newEnv(cmd *cobra.Command) (*env, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	driver, err := cmd.Root().PersistentFlags().GetString("driver")
	if err != nil {
		return nil, fmt.Errorf("failed to get driver flag: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Storage.Driver = driver

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &env{ctx: ctx, cancel: cancel, cfg: cfg, log: newLogger(verbose)}, nil
}

func (e *env) close() {
	e.cancel()
	_ = e.log.Sync()
}

func (e *env) store() (*poktinfo.DB, error) {
	return collector.OpenStore(e.ctx, e.cfg.Storage, e.log, "cli")
}

// chain returns a client over a freshly validated endpoint pool. When no candidate is
// accepted the client falls back to the main endpoint.
func (e *env) chain(recorder rpc.EndpointRecorder) (*rpc.HTTPClient, *rpc.Pool, error) {
	pool := rpc.NewPool()
	client := collector.NewRPC(e.cfg.RPC, pool, e.log.Named("rpc"))
	validator := collector.NewValidator(e.cfg.RPC, client, pool, recorder, e.log.Named("validator"))
	if _, err := validator.Populate(e.ctx, e.cfg.RPC.NodeFrom, e.cfg.RPC.NodeTo); err != nil {
		return nil, nil, fmt.Errorf("populate endpoints: %w", err)
	}
	return client, pool, nil
}

// collectorEnv is the storage, chain and activity context a backfill or retry runs on.
type collectorEnv struct {
	store    *poktinfo.DB
	client   *rpc.HTTPClient
	resolver *height.Resolver
	sources  *collector.Sources
}

func (c *collectorEnv) close() {
	if c.sources != nil {
		_ = c.sources.Close()
	}
	if c.resolver != nil {
		c.resolver.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

func (e *env) collector() (*collectorEnv, error) {
	out := &collectorEnv{}
	store, err := e.store()
	if err != nil {
		return nil, err
	}
	out.store = store

	client, _, err := e.chain(store)
	if err != nil {
		out.close()
		return nil, err
	}
	out.client = client

	resolver, err := height.NewResolver(e.log.Named("height"), client)
	if err != nil {
		out.close()
		return nil, err
	}
	out.resolver = resolver
	out.sources = collector.NewSources(e.ctx, e.cfg, e.log, store, client, resolver)
	return out, nil
}

func printSummary(service string, sum activity.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Service", "Succeeded", "Failed", "Skipped"})
	table.Append([]string{
		service,
		strconv.Itoa(sum.Succeeded),
		strconv.Itoa(sum.Failed),
		strconv.Itoa(sum.Skipped),
	})
	table.Render()
}
