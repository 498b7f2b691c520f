package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/codeloom/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Codeloom HTTP API server",
	Long: `Start the HTTP API server. Clients submit project descriptions,
stream progress events over SSE, browse generated files, and download
finished projects as ZIP archives.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "address to bind (overrides config)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides config)")
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	handler := server.NewRouter(server.RouterOptions{
		Registry:     a.registry,
		Orchestrator: a.orch,
		Store:        a.store,
		Logger:       a.logger,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
	})
	srv := server.New(a.cfg.Server.Host, a.cfg.Server.Port, handler, a.logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Session.SweepEnabled {
		a.orch.StartSweeper(ctx, a.cfg.Session.SweepInterval(), a.cfg.Session.MaxAge())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("codeloom listening on http://%s\n", srv.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// Let in-flight pipelines finish publishing their terminal events.
	a.orch.Wait()
	return nil
}
