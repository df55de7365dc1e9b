// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dacapoday/vstore/docstore"
)

const (
	flagConfig    = "config"
	flagDir       = "dir"
	flagCreate    = "create"
	flagLogLevel  = "log-level"
	flagMmap      = "mmap"
	flagLazyIndex = "lazy-index"
	flagCapacity  = "block-capacity"
	flagHasher    = "hasher"
)

// app carries the configuration shared by every command.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	cmd := &cobra.Command{
		Use:           "vstore",
		Short:         "Inspect and edit a versioned document store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagConfig, "", "config file (yaml, toml or json)")
	flags.String(flagDir, ".", "store directory")
	flags.Bool(flagCreate, false, "create the store if it does not exist")
	flags.String(flagLogLevel, "warn", "log level: debug, info, warn, error")
	flags.Bool(flagMmap, false, "memory-map the record files")
	flags.Bool(flagLazyIndex, false, "defer index writes until commit")
	flags.Int(flagCapacity, 0, "blob block capacity of a new store")
	flags.String(flagHasher, "", "digest of a new store: sha256 or keccak256")
	if err := a.v.BindPFlags(flags); err != nil {
		panic(err)
	}
	a.v.SetEnvPrefix("vstore")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	cmd.AddCommand(
		a.getCmd(),
		a.setCmd(),
		a.eraseCmd(),
		a.lsCmd(),
		a.commitCmd(),
		a.revertCmd(),
		a.hashCmd(),
		a.existsCmd(),
		a.verifyCmd(),
		a.infoCmd(),
	)
	return cmd
}

func (a *app) load() error {
	path := a.v.GetString(flagConfig)
	if path == "" {
		return nil
	}
	a.v.SetConfigFile(path)
	return errors.Wrapf(a.v.ReadInConfig(), "read config %s", path)
}

func (a *app) logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(a.v.GetString(flagLogLevel))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	return logger, errors.WithStack(err)
}

// withStore opens the configured store, runs fn and closes the store.
func (a *app) withStore(fn func(store *docstore.Store) error) (err error) {
	logger, err := a.logger()
	if err != nil {
		return
	}
	defer logger.Sync()

	store, err := docstore.Open(a.v.GetString(flagDir),
		docstore.WithCreate(a.v.GetBool(flagCreate)),
		docstore.WithMmap(a.v.GetBool(flagMmap)),
		docstore.WithLazyIndex(a.v.GetBool(flagLazyIndex)),
		docstore.WithBlockCapacity(a.v.GetInt(flagCapacity)),
		docstore.WithHasher(a.v.GetString(flagHasher)),
		docstore.WithLogger(logger),
	)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()
	return fn(store)
}
