// Package sharedctx implements the Shared Context: a concurrent key/value
// store keyed by {task_id}.{scope}.{port}, used to pass values between a
// task executor and later re-entries of the same node (resume values,
// streaming accumulators, tool-call scratch state) without routing them
// through the Graph Document itself.
package sharedctx

import (
	"fmt"
	"sync"
)

// Key identifies one slot in the Shared Context. TaskID is the demand's
// task (node) id, Scope distinguishes concerns within that task (e.g.
// "resume", "stream"), and Port optionally narrows to one port of the
// task.
type Key struct {
	TaskID string
	Scope  string
	Port   string
}

// String renders the key as "{task_id}.{scope}.{port}", omitting a
// trailing empty Port.
func (k Key) String() string {
	if k.Port == "" {
		return fmt.Sprintf("%s.%s", k.TaskID, k.Scope)
	}
	return fmt.Sprintf("%s.%s.%s", k.TaskID, k.Scope, k.Port)
}

// Context is a thread-safe key/value store. The zero value is not usable;
// construct with New.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// New returns an empty Shared Context.
func New() *Context {
	return &Context{values: make(map[string]any)}
}

// Set stores value under key, replacing anything previously there.
func (c *Context) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key.String()] = value
}

// Get retrieves the raw value stored at key.
func (c *Context) Get(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key.String()]
	return v, ok
}

// Delete removes whatever is stored at key, if anything.
func (c *Context) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key.String())
}

// ClearTask removes every key belonging to taskID, used when a node is
// removed from the graph or its task is cancelled.
func (c *Context) ClearTask(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := taskID + "."
	for k := range c.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.values, k)
		}
	}
}

// Get retrieves a typed value stored at key. It reports ok=false both when
// the key is absent and when the stored value is not assignable to T, so
// callers can't silently read a zero value as "present".
func Get[T any](c *Context, key Key) (T, bool) {
	var zero T
	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
