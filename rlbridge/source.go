// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package rlbridge

import (
	"github.com/bradleyjkemp/vmfuzz/mutate"
	"github.com/bradleyjkemp/vmfuzz/prng"
)

// Source chooses the mutation actions of an iteration.
type Source interface {
	// Actions returns n actions for the given state vector.
	Actions(state []float32, n int) ([]mutate.Action, error)
	// Reward reports the outcome of the last actions.
	Reward(r float32) error
	Name() string
	Close() error
}

// Remote asks the policy process.
type Remote struct {
	c *Client
}

func NewRemote(c *Client) *Remote {
	return &Remote{c: c}
}

func (r *Remote) Actions(state []float32, n int) ([]mutate.Action, error) {
	if err := r.c.SendState(state); err != nil {
		return nil, err
	}
	return r.c.RecvActions(n)
}

func (r *Remote) Reward(v float32) error {
	return r.c.SendReward(v)
}

func (r *Remote) Name() string {
	return "remote"
}

func (r *Remote) Close() error {
	return r.c.Close()
}

// Uniform picks tiers and operators uniformly at random.
type Uniform struct {
	r *prng.Rand
}

func NewUniform(r *prng.Rand) *Uniform {
	return &Uniform{r: r}
}

func (u *Uniform) Actions(state []float32, n int) ([]mutate.Action, error) {
	return mutate.RandomActions(u.r, n), nil
}

func (u *Uniform) Reward(float32) error {
	return nil
}

func (u *Uniform) Name() string {
	return "uniform"
}

func (u *Uniform) Close() error {
	return nil
}
