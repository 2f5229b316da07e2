package trigger

import "sync"

// Control is the scan button. At most one click is in flight at a time.
type Control struct {
	mu       sync.Mutex
	disabled bool
	enables  int
}

// Acquire disables the control. It returns false when the control is
// already disabled. The returned release re-enables the control; only its
// first call has an effect.
func (c *Control) Acquire() (release func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return func() {}, false
	}
	c.disabled = true

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.disabled = false
			c.enables++
			c.mu.Unlock()
		})
	}, true
}

// Enabled reports whether the control accepts a click.
func (c *Control) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disabled
}

// Enables returns how many times the control was re-enabled.
func (c *Control) Enables() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enables
}
