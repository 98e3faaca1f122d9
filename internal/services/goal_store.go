package services

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// GoalStore keeps the optional savings goal.
type GoalStore struct {
	kv storage.KV

	mu   sync.RWMutex
	goal *core.Goal
}

func NewGoalStore(kv storage.KV) *GoalStore {
	return &GoalStore{kv: kv}
}

// Load reads the persisted goal. A malformed or invalid goal reads as unset.
func (g *GoalStore) Load(ctx context.Context) error {
	var stored core.Goal
	ok, err := storage.GetJSON(ctx, g.kv, storage.KeyGoal, &stored)
	if err != nil {
		return fmt.Errorf("load goal: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.goal = nil
	if ok && stored.Validate() == nil {
		g.goal = &stored
	}
	return nil
}

// Get returns a copy of the goal, or nil when none is set.
func (g *GoalStore) Get() *core.Goal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.goal == nil {
		return nil
	}
	cp := *g.goal
	return &cp
}

func (g *GoalStore) Set(ctx context.Context, goal core.Goal) error {
	if err := goal.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := storage.SetJSON(ctx, g.kv, storage.KeyGoal, goal); err != nil {
		return fmt.Errorf("persist goal: %w", err)
	}
	g.goal = &goal
	return nil
}

func (g *GoalStore) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.kv.Delete(ctx, storage.KeyGoal); err != nil {
		return fmt.Errorf("clear goal: %w", err)
	}
	g.goal = nil
	return nil
}
