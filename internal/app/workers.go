package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/webhookhub/webhookhub/internal/consumer"
	"github.com/webhookhub/webhookhub/internal/logging"
)

type httpWorker struct {
	server *http.Server
	logger *logging.Logger
}

func newHTTPWorker(port int, handler http.Handler, logger *logging.Logger) *httpWorker {
	return &httpWorker{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: handler,
		},
		logger: logger,
	}
}

func (w *httpWorker) Name() string {
	return "http"
}

func (w *httpWorker) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		w.logger.Info("http server listening", zap.String("addr", w.server.Addr))
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return w.server.Shutdown(shutdownCtx)
}

type consumerWorker struct {
	consumer consumer.Consumer
}

func newConsumerWorker(c consumer.Consumer) *consumerWorker {
	return &consumerWorker{consumer: c}
}

func (w *consumerWorker) Name() string {
	return "deliverymq-consumer"
}

func (w *consumerWorker) Run(ctx context.Context) error {
	return w.consumer.Run(ctx)
}
