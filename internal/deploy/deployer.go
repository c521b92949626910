// Package deploy wires the reactor hooks to the parameter hand-off and the
// git publisher.
//
// A multi-module build invokes the CLI once per module. The invocation for
// the execution-root module captures the deployment configuration and
// persists it; the invocation for the last module loads it back, publishes
// the site and discards the persisted file.
package deploy

import (
	"context"

	"github.com/shinji-kodama/gitsite/internal/logging"
	"github.com/shinji-kodama/gitsite/internal/model"
	"github.com/shinji-kodama/gitsite/internal/params"
	"github.com/shinji-kodama/gitsite/internal/publish"
	"github.com/shinji-kodama/gitsite/internal/reactor"
)

// PublisherFactory builds the publisher used by the last module. log
// already fans out to the console and the configured logfile.
type PublisherFactory func(cfg model.DeploymentConfig, log logging.Sink) *publish.Publisher

// Deployer implements reactor.Hooks for the deploy command.
type Deployer struct {
	reactor.NopHooks

	// Config is the configuration given to this invocation.
	Config model.DeploymentConfig

	// Store persists Config between the root and the last module.
	Store *params.Store

	// Console receives progress lines; nil means klog.
	Console logging.Sink

	// NewPublisher defaults to publish.NewPublisher.
	NewPublisher PublisherFactory

	// Outcome is set after a successful publish.
	Outcome *publish.Outcome
}

// New returns a Deployer persisting to store.
func New(cfg model.DeploymentConfig, store *params.Store) *Deployer {
	return &Deployer{Config: cfg, Store: store}
}

func (d *Deployer) console() logging.Sink {
	if d.Console == nil {
		return logging.Console{}
	}
	return d.Console
}

// RootModule validates the configuration and persists every field.
func (d *Deployer) RootModule(_ context.Context, m reactor.Module) error {
	if err := d.Config.Validate(); err != nil {
		return err
	}
	path, err := d.Store.Save(d.Config, params.AllFields()...)
	if err != nil {
		return err
	}
	logging.Printf(d.console(), logging.SeverityInfo, "Saved deployment parameters of %s to %s", m.ID, path)
	return nil
}

// LastModule loads the persisted configuration over the invocation's own,
// publishes the site and discards the persisted file, whether or not the
// publish succeeded.
func (d *Deployer) LastModule(ctx context.Context, m reactor.Module) error {
	cfg := d.Config
	if err := d.Store.LoadInto(&cfg); err != nil {
		return err
	}
	defer d.Store.Discard(d.console())

	log := logging.Multi(d.console(), logging.NewTranscript(cfg.LogFile))
	logging.Printf(log, logging.SeverityInfo, "Publishing site from %s (last module %s)", cfg.InputDirectory, m.ID)

	newPublisher := d.NewPublisher
	if newPublisher == nil {
		newPublisher = func(_ model.DeploymentConfig, log logging.Sink) *publish.Publisher {
			return publish.NewPublisher(log)
		}
	}
	out, err := newPublisher(cfg, log).Publish(ctx, cfg)
	if err != nil {
		return err
	}
	d.Outcome = out
	return nil
}
