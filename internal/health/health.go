// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package health implements the readiness checks behind /healthz/readiness.
package health

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresCheck pings the database pool.
func PostgresCheck(pool Pinger) Check {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return oops.Code("POSTGRES_UNAVAILABLE").Wrap(err)
		}
		return nil
	}
}

// RedisCheck pings the mail queue's Redis.
func RedisCheck(client redis.UniversalClient) Check {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return oops.Code("REDIS_UNAVAILABLE").Wrap(err)
		}
		return nil
	}
}

// Checker runs named checks in order.
type Checker struct {
	names  []string
	checks []Check
}

// NewChecker returns an empty Checker. An empty Checker is always ready.
func NewChecker() *Checker {
	return &Checker{}
}

// Add registers a check under name and returns c for chaining.
func (c *Checker) Add(name string, check Check) *Checker {
	c.names = append(c.names, name)
	c.checks = append(c.checks, check)
	return c
}

// Ready runs every check and joins the failures. It matches
// observability.ReadinessChecker.
func (c *Checker) Ready(ctx context.Context) error {
	var errs []error
	for i, check := range c.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, oops.With("check", c.names[i]).Wrap(err))
		}
	}
	return errors.Join(errs...)
}
