// Copyright 2021 Flamego. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/flamego/flamego"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/flamego/userdata"
	"github.com/flamego/userdata/internal/config"
)

func serveCmd() *cobra.Command {
	var envFile, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the demo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&envFile, "env-file", "e", ".env", "Path to the .env file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address, overrides SESS_HTTP_ADDR")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "userdata-demo",
	})
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	opts, err := cfg.Options(logger)
	if err != nil {
		return errors.Wrap(err, "options")
	}
	registry := prometheus.NewRegistry()
	opts.Registerer = registry

	f := flamego.New()
	f.Use(flamego.Recovery())
	f.Use(userdata.Sessioner(opts))
	f.Get("/", home)
	f.Get("/login/{name}", login)
	f.Get("/code", code)
	f.Get("/logout", logout)
	f.Get("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           f,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.HTTPAddr, "driver", cfg.Driver, "store", cfg.Store)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err = <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func home(s *userdata.Session) string {
	name, ok := s.Userdata("name")
	if !ok {
		return "Hello, stranger. Visit /login/{name} to sign in.\n"
	}

	msg := fmt.Sprintf("Hello, %v. Your session is %s on the %s driver.\n", name, s.ID(), s.Current())
	if notice, ok := s.Flashdata("notice"); ok {
		msg += fmt.Sprintf("%v\n", notice)
	}
	return msg
}

func login(c flamego.Context, s *userdata.Session) {
	err := s.Regenerate(false)
	if err != nil {
		c.ResponseWriter().WriteHeader(http.StatusInternalServerError)
		return
	}
	s.SetUserdata("name", c.Param("name"))
	s.SetFlashdata("notice", "Signed in.")
	c.Redirect("/")
}

func code(s *userdata.Session) string {
	if v, ok := s.Tempdata("code"); ok {
		return fmt.Sprintf("Your code is %v.\n", v)
	}

	v := time.Now().UnixNano() % 1000000
	s.SetTempdata("code", v, time.Minute)
	return fmt.Sprintf("Issued code %06d, valid for one minute.\n", v)
}

func logout(c flamego.Context, s *userdata.Session) {
	err := s.Destroy()
	if err != nil {
		c.ResponseWriter().WriteHeader(http.StatusInternalServerError)
		return
	}
	c.Redirect("/")
}
