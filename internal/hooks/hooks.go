// Package hooks implements the lifecycle-plugin fan-out the scheduler
// drives around each task and each loop.
package hooks

import (
	"github.com/rs/zerolog/log"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// Lifecycle is the collaborator plugin contract. Every method is optional:
// embed Noop to implement only the ones you need.
type Lifecycle interface {
	OnConfigLoad(config any) any
	OnLoopStart(namespace string)
	OnTaskStart(ctx models.TaskContext)
	OnTaskComplete(ctx models.TaskContext, result models.RetryResult)
	OnTaskFailed(ctx models.TaskContext, err error)
	OnLoopEnd(stats models.LoopStats)
	OnBackendReady(backend any)
}

// Noop implements Lifecycle with no-op methods. Embed it to implement only
// the hooks a plugin cares about.
type Noop struct{}

func (Noop) OnConfigLoad(c any) any                                          { return c }
func (Noop) OnLoopStart(string)                                              {}
func (Noop) OnTaskStart(models.TaskContext)                                  {}
func (Noop) OnTaskComplete(models.TaskContext, models.RetryResult)           {}
func (Noop) OnTaskFailed(models.TaskContext, error)                         {}
func (Noop) OnLoopEnd(models.LoopStats)                                      {}
func (Noop) OnBackendReady(any)                                              {}

var _ Lifecycle = Noop{}

// Chain holds an ordered list of Lifecycle plugins and fans out each event
// sequentially in registration order. A panic or error from one plugin is
// recovered, logged, and never propagated: plugin failures are isolated
// and never abort the task.
type Chain struct {
	plugins []Lifecycle
}

// New returns an empty Chain.
func New() *Chain { return &Chain{} }

// Register appends a plugin to the end of the chain.
func (c *Chain) Register(l Lifecycle) {
	c.plugins = append(c.plugins, l)
}

func (c *Chain) invoke(name string, fn func(Lifecycle)) {
	for _, p := range c.plugins {
		c.invokeOne(name, p, fn)
	}
}

func (c *Chain) invokeOne(name string, p Lifecycle, fn func(Lifecycle)) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("hook", name).
				Interface("panic", r).
				Msg("hooks: plugin panicked, isolating and continuing")
		}
	}()
	fn(p)
}

// OnConfigLoad threads config through every plugin in order, letting each
// rewrite it in turn.
func (c *Chain) OnConfigLoad(config any) any {
	for _, p := range c.plugins {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn().Interface("panic", r).Msg("hooks: OnConfigLoad plugin panicked, keeping prior config")
				}
			}()
			config = p.OnConfigLoad(config)
		}()
	}
	return config
}

func (c *Chain) OnLoopStart(namespace string) {
	c.invoke("onLoopStart", func(l Lifecycle) { l.OnLoopStart(namespace) })
}

func (c *Chain) OnTaskStart(ctx models.TaskContext) {
	c.invoke("onTaskStart", func(l Lifecycle) { l.OnTaskStart(ctx) })
}

func (c *Chain) OnTaskComplete(ctx models.TaskContext, result models.RetryResult) {
	c.invoke("onTaskComplete", func(l Lifecycle) { l.OnTaskComplete(ctx, result) })
}

func (c *Chain) OnTaskFailed(ctx models.TaskContext, err error) {
	c.invoke("onTaskFailed", func(l Lifecycle) { l.OnTaskFailed(ctx, err) })
}

func (c *Chain) OnLoopEnd(stats models.LoopStats) {
	c.invoke("onLoopEnd", func(l Lifecycle) { l.OnLoopEnd(stats) })
}

func (c *Chain) OnBackendReady(backend any) {
	c.invoke("onBackendReady", func(l Lifecycle) { l.OnBackendReady(backend) })
}
