package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Chinzzii/docstore/internal/api"
	"github.com/Chinzzii/docstore/internal/config"
	"github.com/Chinzzii/docstore/internal/metrics"
	"github.com/Chinzzii/docstore/internal/persist"
	"github.com/Chinzzii/docstore/internal/store"
	"github.com/Chinzzii/docstore/internal/watch"
)

type cmdServe struct{}

func (cmdServe) Execute(args []string) error {
	if err := config.InitLog(Config.Log); err != nil {
		return err
	}
	if err := Config.Auth.Validate(); err != nil {
		return err
	}
	prometheus.MustRegister(metrics.Collectors()...)

	var gw, err = openGateway(afero.NewOsFs())
	if err != nil {
		return err
	}
	db, err := gw.Load()
	if err != nil {
		return err
	}
	var st = store.New(db, gw, store.WithStrictPersistence(Config.Store.Strict))

	var srv = &http.Server{
		Addr:    Config.HTTP.Addr(),
		Handler: api.NewServer(Config, st, gw, log.StandardLogger()).Routes(),
	}

	var ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	var tasks, tasksCtx = errgroup.WithContext(ctx)

	if Config.Store.Watch {
		var w, err = watch.New(gw.Path(), st, gw.ReadIfChanged, Config.Store.WatchDebounce)
		if err != nil {
			return err
		}
		tasks.Go(func() error { return w.Run(tasksCtx) })
	}

	tasks.Go(func() error {
		log.WithFields(log.Fields{
			"addr":      srv.Addr,
			"file":      gw.Path(),
			"resources": st.Resources(),
			"watch":     Config.Store.Watch,
			"auth":      Config.Auth.Enabled,
		}).Info("serving")

		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return errors.WithMessage(err, "serving http")
		}
		return nil
	})
	tasks.Go(func() error {
		<-tasksCtx.Done() // Block until signaled, or another task fails.
		log.Info("shutting down")

		var shutdownCtx, cancel = context.WithTimeout(context.Background(), Config.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = tasks.Wait()
	if flushErr := st.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if err == nil {
		log.Info("goodbye")
	}
	return err
}

// openGateway returns the Gateway of the configured database file,
// bootstrapping from the configured seed file, if any.
func openGateway(fs afero.Fs) (*persist.Gateway, error) {
	var opts []persist.Option

	if Config.Store.Seed != "" {
		var seed, err = persist.LoadSeed(fs, Config.Store.Seed)
		if err != nil {
			return nil, err
		}
		opts = append(opts, persist.WithDefaults(seed))
	}
	return persist.NewGateway(fs, Config.Store.Path, opts...), nil
}
