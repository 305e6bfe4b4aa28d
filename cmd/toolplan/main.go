// Command toolplan loads and validates a tool catalog and affordance rules,
// and serves the planner as genkit flows.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/toolplan/internal/logging"
	"github.com/ZanzyTHEbar/toolplan/pkg/toolplan"
)

// PlanRequest is the input of the buildExecutionPlan flow.
type PlanRequest struct {
	Calls []toolplan.FunctionCall `json:"calls"`
	// Prior results are inspected by payload keys only.
	Prior []toolplan.ToolResult `json:"prior,omitempty"`
	// Satisfied declares tags already available from earlier rounds.
	Satisfied []toolplan.DataTag `json:"satisfied,omitempty"`
}

func (r *PlanRequest) state() toolplan.State {
	results := append(toolplan.Results{}, r.Prior...)
	if len(r.Satisfied) > 0 {
		results = append(results, toolplan.ToolResult{
			Name:    "declared",
			Payload: toolplan.TaggedPayload{Tags: r.Satisfied},
		})
	}
	return results
}

// ScoreRequest is the input of the scoreAffordances flow.
type ScoreRequest struct {
	Query string `json:"query"`
}

var (
	catalogPath string
	rulesPath   string
	addr        string
	trace       bool
	eventBuffer int
)

var rootCmd = &cobra.Command{
	Use:   "toolplan",
	Short: "Dependency-aware tool call planner",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the tool catalog and affordance rules",
	Long:  `The validate command loads the catalog and rule overrides, checks them for tag cycles and malformed rules, and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), logging.New(os.Stderr, trace), true)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the planner as genkit flows over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), logging.New(os.Stderr, trace), false)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "YAML catalog applied over the built-in tools")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "YAML affordance rules replacing the built-in table")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "log every lifecycle event at debug level")
	serveCmd.Flags().StringVar(&addr, "addr", ":3400", "address serving the flows over HTTP")
	rootCmd.PersistentFlags().IntVar(&eventBuffer, "event-buffer", 256, "events that may wait for the logging worker")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Default().Error("toolplan failed", map[string]any{"error": err.Error()})
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger logging.Logger, validateOnly bool) error {
	cfg := toolplan.DefaultConfig()
	cfg.CatalogFile = catalogPath
	cfg.RulesFile = rulesPath

	bus := toolplan.NewEventBus(
		toolplan.WithEventLogger(logger),
		toolplan.WithEventBufferSize(eventBuffer),
		toolplan.WithEventWorkers(1),
		toolplan.WithEventRetries(0, 0),
	)
	defer bus.Close()
	fallbackID, err := bus.Subscribe([]toolplan.EventType{toolplan.EventPlanFallbackSequential}, func(_ context.Context, event toolplan.Event) error {
		logger.Warn("Plan fell back to sequential order", event.Metadata())
		return nil
	})
	if err != nil {
		return err
	}
	defer bus.Unsubscribe(fallbackID)
	if trace {
		traceID, err := bus.SubscribeAll(func(_ context.Context, event toolplan.Event) error {
			logger.Debug("Event", map[string]any{
				"type":     string(event.Type()),
				"source":   event.Source(),
				"metadata": event.Metadata(),
			})
			return nil
		})
		if err != nil {
			return err
		}
		defer bus.Unsubscribe(traceID)
	}

	planner, err := toolplan.New(
		toolplan.WithConfig(cfg),
		toolplan.WithLogger(logger),
		toolplan.WithEventBus(bus),
	)
	if err != nil {
		return err
	}
	if validateOnly {
		fmt.Printf("catalog ok: %d tools\n", planner.Catalog().Len())
		return nil
	}

	g, err := genkit.Init(ctx)
	if err != nil {
		return fmt.Errorf("genkit initialization failed: %w", err)
	}

	planFlow := genkit.DefineFlow(g, "buildExecutionPlan",
		func(ctx context.Context, req *PlanRequest) (*toolplan.ExecutionPlan, error) {
			if req == nil {
				return nil, errors.New("request is required")
			}
			return planner.BuildExecutionPlan(req.Calls, req.state()), nil
		},
	)
	scoreFlow := genkit.DefineFlow(g, "scoreAffordances",
		func(ctx context.Context, req *ScoreRequest) ([]toolplan.Affordance, error) {
			if req == nil {
				return nil, errors.New("request is required")
			}
			return planner.ScoreAffordances(req.Query, nil), nil
		},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /buildExecutionPlan", genkit.Handler(planFlow))
	mux.HandleFunc("POST /scoreAffordances", genkit.Handler(scoreFlow))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("Serving planner flows", map[string]any{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
