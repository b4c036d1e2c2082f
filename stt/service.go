package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

type job struct {
	ctx  context.Context
	path string
	out  chan result
}

type result struct {
	text string
	err  error
}

// Service owns exactly one active engine instance, swappable without a
// process restart. Transcriptions hold a read lock for their duration, so a
// Reload waits out in-flight work instead of yanking the engine from under
// it. Calls are executed by a fixed pool of workers; Transcribe blocks until
// a worker picks the job up and finishes it.
type Service struct {
	mu     sync.RWMutex
	engine Engine
	model  string

	load    Loader
	jobs    chan job
	workers int
	wg      sync.WaitGroup
	logger  *log.Logger
}

func NewService(load Loader, model string, workers int, logger *log.Logger) (*Service, error) {
	if !KnownModel(model) {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	engine, err := load(model)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", model, err)
	}
	if workers < 1 {
		workers = 1
	}
	s := &Service{
		engine:  engine,
		model:   model,
		load:    load,
		jobs:    make(chan job),
		workers: workers,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	logger.Info("engine ready", "model", model, "workers", workers)
	return s, nil
}

func (s *Service) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		text, err := s.run(j.ctx, j.path)
		j.out <- result{text: text, err: err}
	}
}

func (s *Service) run(ctx context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, err := s.engine.Transcribe(ctx, path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return Placeholder, nil
	}
	return text, nil
}

// Transcribe queues the file for one of the pool workers and waits for the
// text. It never returns an empty string on success.
func (s *Service) Transcribe(ctx context.Context, path string) (string, error) {
	out := make(chan result, 1)
	select {
	case s.jobs <- job{ctx: ctx, path: path, out: out}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-out:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Service) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *Service) Workers() int { return s.workers }

// Reload swaps in an engine for the named model. On a load failure the
// current engine stays active and the service's model name is unchanged.
func (s *Service) Reload(name string) error {
	if !KnownModel(name) {
		return fmt.Errorf("unknown model %q", name)
	}
	next, err := s.load(name)
	if err != nil {
		return fmt.Errorf("load model %s: %w", name, err)
	}

	s.mu.Lock()
	prev := s.engine
	s.engine = next
	s.model = name
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Warn("close previous engine", "error", err)
		}
	}
	s.logger.Info("engine swapped", "model", name)
	return nil
}

// Close drains the worker pool and releases the active engine.
func (s *Service) Close() error {
	close(s.jobs)
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Close()
}
