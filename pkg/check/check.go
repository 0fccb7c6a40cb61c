// Package check verifies that every bound model role is reachable and
// authorized before any expensive stage runs. All roles are probed even when
// an earlier one fails, so one run surfaces every problem at once.
package check

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zavalabs/raft/internal/models"
	"github.com/zavalabs/raft/pkg/llm"
	"github.com/zavalabs/raft/pkg/logger"
)

const probePrompt = "Reply with the single word: ok"

// Result is the outcome of probing one role's endpoint.
type Result struct {
	Role       models.Role
	Deployment string
	Latency    time.Duration
	Err        error
}

func (r Result) Healthy() bool { return r.Err == nil }

// probe resolves and exercises one role's endpoint. Swappable in tests.
type probe func(ctx context.Context, role models.Role, getenv llm.Getenv) (deployment string, err error)

type Checker struct {
	getenv llm.Getenv
	probe  probe
	log    *logger.Logger
}

func New(getenv llm.Getenv) *Checker {
	return &Checker{
		getenv: getenv,
		probe:  liveProbe,
		log:    logger.New("check"),
	}
}

// NewWithProbe builds a checker with a custom probe implementation.
func NewWithProbe(getenv llm.Getenv, p probe) *Checker {
	c := New(getenv)
	c.probe = p
	return c
}

// Check probes every role concurrently and always returns one result per
// role, in the given order.
func (c *Checker) Check(ctx context.Context, roles []models.Role) []Result {
	results := make([]Result, len(roles))
	var wg sync.WaitGroup

	for i, role := range roles {
		wg.Add(1)
		go func(i int, role models.Role) {
			defer wg.Done()

			start := time.Now()
			deployment, err := c.probe(ctx, role, c.getenv)
			results[i] = Result{
				Role:       role,
				Deployment: deployment,
				Latency:    time.Since(start),
			}
			if err != nil {
				results[i].Err = &models.ConnectivityError{Role: role, Err: err}
				c.log.Warn("probe failed", "role", role, "error", err)
				return
			}
			c.log.Debug("probe ok", "role", role, "deployment", deployment, "latency", results[i].Latency)
		}(i, role)
	}

	wg.Wait()
	return results
}

// AllHealthy reports whether every result passed.
func AllHealthy(results []Result) bool {
	for _, result := range results {
		if !result.Healthy() {
			return false
		}
	}
	return true
}

func liveProbe(ctx context.Context, role models.Role, getenv llm.Getenv) (string, error) {
	endpoint, err := llm.RoleEndpoint(role, getenv)
	if err != nil {
		return "", err
	}

	if role == models.RoleEmbedding {
		embedder, err := llm.NewEmbedderWithEndpoint(endpoint)
		if err != nil {
			return endpoint.Deployment, err
		}
		vectors, err := embedder.CreateEmbedding(ctx, []string{"ok"})
		if err != nil {
			return endpoint.Deployment, err
		}
		if len(embedder.FlattenEmbeddings(vectors)) == 0 {
			return endpoint.Deployment, errors.New("embedding probe returned an empty vector")
		}
		return endpoint.Deployment, nil
	}

	engine, err := llm.ForRole(role, getenv, 0, 8)
	if err != nil {
		return endpoint.Deployment, err
	}
	_, err = engine.Complete(ctx, "", probePrompt)
	return endpoint.Deployment, err
}
