package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	v1 "coursematch/handler/http/v1"
	"coursematch/src/core/session"
	"coursematch/src/infrastructure/events"
	"coursematch/src/infrastructure/reload"
	"coursematch/src/log"
	"coursematch/src/metrics"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the course matching chat server",
	Long: `The serve command starts an HTTP server with the chat session API. With --watch it reloads
the index when the index directory changes; with events.enabled it reloads when a new index is
published.`,
	RunE: RunServer,
}

func init() {
	serveCmd.Flags().Bool("watch", false, "reload the index when the index directory changes")
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	eventsEnabled := viper.GetBool("events.enabled")
	indexDir := viper.GetString("index.dir")

	holder, err := loadIndex(indexDir, watch || eventsEnabled)
	if err != nil {
		return err
	}
	controller, err := newController(holder)
	if err != nil {
		return err
	}
	sessions, err := session.NewStore(viper.GetInt("session.capacity"))
	if err != nil {
		return err
	}
	m := metrics.New(func() float64 { return float64(holder.Current().Len()) })
	reloader := reload.NewReloader(holder, indexDir, viper.GetString("embedding.model"), log.WithName("reload")).
		OnReload(m.ObserveReload)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if watch {
		go func() {
			if err := reloader.Watch(ctx, reload.DefaultSettle); err != nil {
				log.Error(err, "Index watcher stopped")
			}
		}()
	}

	var eventsDone <-chan struct{}
	if eventsEnabled {
		done, err := startIndexEvents(ctx, reloader)
		if err != nil {
			return err
		}
		eventsDone = done
	}

	// Setup gin router
	r := gin.Default()
	v1.NewHandler(sessions, controller, holder, m).RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	log.Info("Server starting", "addr", srv.Addr, "entries", holder.Current().Len())
	serveErr := runHTTP(ctx, srv, timeout)
	cancel()
	if eventsDone != nil {
		select {
		case <-eventsDone:
			log.Info("Event router stopped")
		case <-time.After(timeout):
		}
	}

	log.Info("Server exited")
	return serveErr
}

// runHTTP serves until ctx is done, then shuts srv down within timeout. A listener failure is
// returned without waiting for ctx.
func runHTTP(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	failed := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	select {
	case err := <-failed:
		if err != nil {
			log.Error(err, "Failed to start server")
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
		return err
	}
	return nil
}

// startIndexEvents consumes index.published and reloads through reloader. The returned channel
// closes once the router has stopped.
func startIndexEvents(ctx context.Context, reloader *reload.Reloader) (<-chan struct{}, error) {
	logger := eventsLogger()
	store, err := newMinio()
	if err != nil {
		return nil, err
	}
	host, _ := os.Hostname()
	sub, err := events.NewAMQPSubscriber(viper.GetString("amqp.url"), host+"-"+uuid.NewString()[:8], logger)
	if err != nil {
		return nil, err
	}

	router, err := events.NewRouter(sub, events.RouterConfig{
		Topic:      viper.GetString("events.topic"),
		MaxRetries: viper.GetInt("events.max_retries"),
	}, logger, reloader.HandleIndexPublished(store))
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Close()
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Event router stopped")
		}
	}()
	return done, nil
}
