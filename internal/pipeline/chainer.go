package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Yates-Labs/gobot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Chainer runs the configured components in pipe order over named channels
type Chainer struct {
	config ChainerConfig
	steps  []step
	byID   map[string]Component
}

type step struct {
	config    ComponentConfig
	component Component
}

// Build instantiates every component of the pipe through reg.
// Components referenced from params as "#id" must appear earlier in the pipe.
func Build(config ChainerConfig, reg *ComponentRegistry) (*Chainer, error) {
	if errs := config.validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errs[0])
	}

	c := &Chainer{
		config: config,
		byID:   make(map[string]Component),
	}

	for i, compConfig := range config.Pipe {
		refs := make(map[string]Component)
		for _, ref := range paramRefs(compConfig.Params) {
			refs[ref] = c.byID[ref]
		}

		component, err := reg.Build(compConfig.ClassName, ComponentSpec{Config: compConfig, Refs: refs})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("build chainer.pipe[%d] (%s): %w", i, compConfig.Name(), err)
		}

		c.steps = append(c.steps, step{config: compConfig, component: component})
		if compConfig.ID != "" {
			c.byID[compConfig.ID] = component
		}
		slog.Debug("[Chainer] built component", "index", i, "name", compConfig.Name(), "class", compConfig.ClassName)
	}

	return c, nil
}

// Component returns the component built for id
func (c *Chainer) Component(id string) (Component, bool) {
	comp, ok := c.byID[id]
	return comp, ok
}

// Infer feeds one batch per chainer.in channel through the pipe and
// returns one batch per chainer.out channel
func (c *Chainer) Infer(ctx context.Context, inputs ...Batch) ([]Batch, error) {
	if len(inputs) != len(c.config.In) {
		return nil, fmt.Errorf("chainer expects %d input batch(es), got %d", len(c.config.In), len(inputs))
	}

	channels := make(map[string]Batch)
	for i, name := range c.config.In {
		channels[name] = inputs[i]
	}

	if err := c.run(ctx, channels, false); err != nil {
		return nil, err
	}

	outputs := make([]Batch, len(c.config.Out))
	for i, name := range c.config.Out {
		outputs[i] = channels[name]
	}
	return outputs, nil
}

// Fit runs the pipe in order, fitting each Fitter on its fit_on channels
// before running it, so later components see fitted outputs.
// x holds one batch per chainer.in channel and y one per chainer.in_y channel.
func (c *Chainer) Fit(ctx context.Context, x, y []Batch) error {
	if len(x) != len(c.config.In) {
		return fmt.Errorf("chainer expects %d input batch(es), got %d", len(c.config.In), len(x))
	}
	if len(y) != len(c.config.InY) {
		return fmt.Errorf("chainer expects %d target batch(es), got %d", len(c.config.InY), len(y))
	}

	channels := make(map[string]Batch)
	for i, name := range c.config.In {
		channels[name] = x[i]
	}
	for i, name := range c.config.InY {
		channels[name] = y[i]
	}

	return c.run(ctx, channels, true)
}

func (c *Chainer) run(ctx context.Context, channels map[string]Batch, fit bool) error {
	for _, s := range c.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before %s: %w", s.config.Name(), err)
		}
		if err := c.runStep(ctx, s, channels, fit); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chainer) runStep(ctx context.Context, s step, channels map[string]Batch, fit bool) (err error) {
	ctx, span := telemetry.Start(ctx, "chainer."+s.config.Name(),
		attribute.String("class", s.config.ClassName),
		attribute.Bool("fit", fit))
	defer func() { telemetry.End(span, err) }()

	if fitter, ok := s.component.(Fitter); ok && fit && len(s.config.FitOn) > 0 {
		fitInputs := make([]Batch, len(s.config.FitOn))
		for i, name := range s.config.FitOn {
			fitInputs[i] = channels[name]
		}
		if err := fitter.Fit(ctx, fitInputs); err != nil {
			return fmt.Errorf("fit %s: %w", s.config.Name(), err)
		}
		slog.Debug("[Chainer] fitted component", "name", s.config.Name(), "items", len(fitInputs[0]))
	}

	if len(s.config.In) == 0 {
		return nil
	}

	stepInputs := make([]Batch, len(s.config.In))
	for i, name := range s.config.In {
		stepInputs[i] = channels[name]
	}

	outputs, err := s.component.Infer(ctx, stepInputs)
	if err != nil {
		return fmt.Errorf("run %s: %w", s.config.Name(), err)
	}
	if len(outputs) != len(s.config.Out) {
		return fmt.Errorf("run %s: produced %d output(s), config declares %d", s.config.Name(), len(outputs), len(s.config.Out))
	}
	for i, name := range s.config.Out {
		channels[name] = outputs[i]
	}
	return nil
}

// Save persists every component that has a save_path
func (c *Chainer) Save() error {
	for _, s := range c.steps {
		saver, ok := s.component.(Saver)
		if !ok || s.config.SavePath == "" {
			continue
		}
		if err := saver.Save(s.config.SavePath); err != nil {
			return fmt.Errorf("save %s: %w", s.config.Name(), err)
		}
		slog.Info("[Chainer] saved component", "name", s.config.Name(), "path", s.config.SavePath)
	}
	return nil
}

// Load restores every component that has a load_path
func (c *Chainer) Load() error {
	for _, s := range c.steps {
		loader, ok := s.component.(Loader)
		if !ok || s.config.LoadPath == "" {
			continue
		}
		if err := loader.Load(s.config.LoadPath); err != nil {
			return fmt.Errorf("load %s: %w", s.config.Name(), err)
		}
		slog.Debug("[Chainer] loaded component", "name", s.config.Name(), "path", s.config.LoadPath)
	}
	return nil
}

// Close releases every component that holds open resources
func (c *Chainer) Close() error {
	var errs []error
	for _, s := range c.steps {
		if closer, ok := s.component.(Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.config.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
