package core

import "context"

// TestTick runs one tick loop iteration synchronously. Exposed only to
// external package tests via this test-only file.
func (c *Core) TestTick(ctx context.Context) {
	c.tick(ctx)
}

// TestSync runs the sync scheduler synchronously using the Core's current
// clock. Exposed only to external package tests via this test-only file.
func (c *Core) TestSync(ctx context.Context) {
	sec, usec := c.clock()
	c.sync(ctx, sec, usec)
}
