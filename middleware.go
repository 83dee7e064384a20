package foxytools

import (
	"context"
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// StageFunc adapts a function to Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, req *Request, next Handler) (*Response, error)
}

// Name implements Stage.
func (s StageFunc) Name() string { return s.StageName }

// Handle implements Stage.
func (s StageFunc) Handle(ctx context.Context, req *Request, next Handler) (*Response, error) {
	return s.Fn(ctx, req, next)
}

// RequestStage builds a stage that only transforms the outgoing request.
// An error from fn stops the pipeline before next is called.
func RequestStage(name string, fn func(ctx context.Context, req *Request) error) Stage {
	return StageFunc{StageName: name, Fn: func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		if err := fn(ctx, req); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}}
}

// ResponseStage builds a stage that only transforms the incoming response.
// It is skipped when an inner stage failed.
func ResponseStage(name string, fn func(ctx context.Context, req *Request, resp *Response) (*Response, error)) Stage {
	return StageFunc{StageName: name, Fn: func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		return fn(ctx, req, resp)
	}}
}

// Pipeline is an ordered onion of stages around a terminal transport.
// The first stage is the outermost.
type Pipeline struct {
	stages   []Stage
	terminal Transport
	handler  Handler
}

// NewPipeline composes stages around terminal.
func NewPipeline(terminal Transport, stages ...Stage) *Pipeline {
	p := &Pipeline{
		stages:   append([]Stage(nil), stages...),
		terminal: terminal,
	}

	current := Handler(p.execute)
	for i := len(p.stages) - 1; i >= 0; i-- {
		stage := p.stages[i]
		next := current
		current = func(ctx context.Context, req *Request) (*Response, error) {
			return stage.Handle(ctx, req, next)
		}
	}
	p.handler = current

	return p
}

// Run sends a copy of req through every stage and the transport.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Response, error) {
	return p.handler(ctx, req.Clone())
}

// Stages returns the stage names, outermost first.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

func (p *Pipeline) execute(ctx context.Context, req *Request) (*Response, error) {
	if p.terminal == nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, RequestID: req.ID, Err: fmt.Errorf("no transport configured")}
	}
	resp, err := p.terminal.Execute(ctx, req)
	if err != nil {
		if _, ok := err.(*TransportError); ok {
			return nil, err
		}
		return nil, &TransportError{Method: req.Method, URL: req.URL, RequestID: req.ID, Err: err}
	}
	if resp == nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, RequestID: req.ID, Err: fmt.Errorf("transport returned no response")}
	}
	return resp, nil
}

// StageSpec names a registered stage and its arguments.
type StageSpec struct {
	Name string         `mapstructure:"name" yaml:"name"`
	Args map[string]any `mapstructure:"args" yaml:"args,omitempty"`
}

// Stages is shorthand for specs without arguments.
func Stages(names ...string) []StageSpec {
	specs := make([]StageSpec, len(names))
	for i, n := range names {
		specs[i] = StageSpec{Name: n}
	}
	return specs
}

// StageContext carries client level collaborators to stage factories.
type StageContext struct {
	Config      Config
	Logger      Logger
	RequestIDFn func() string
}

// StageFactory builds a stage from its arguments.
type StageFactory func(args map[string]any, sctx StageContext) (Stage, error)

var stageRegistry = xsync.NewMapOf[string, StageFactory]()

// RegisterStage makes a stage available to the middlewares configuration.
// Registering an existing name replaces it.
func RegisterStage(name string, factory StageFactory) {
	stageRegistry.Store(name, factory)
}

// RegisteredStages lists the registered stage names in sorted order.
func RegisteredStages() []string {
	var names []string
	stageRegistry.Range(func(name string, _ StageFactory) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// BuildStage constructs one stage from its spec.
func BuildStage(spec StageSpec, sctx StageContext) (Stage, error) {
	factory, ok := stageRegistry.Load(spec.Name)
	if !ok {
		return nil, &UnknownStageError{Name: spec.Name}
	}
	stage, err := factory(spec.Args, sctx)
	if err != nil {
		return nil, fmt.Errorf("middleware %q: %w", spec.Name, err)
	}
	return stage, nil
}

// BuildStages constructs every stage in order, failing on the first
// unknown or misconfigured one.
func BuildStages(specs []StageSpec, sctx StageContext) ([]Stage, error) {
	stages := make([]Stage, 0, len(specs))
	for _, spec := range specs {
		stage, err := BuildStage(spec, sctx)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, nil
}
