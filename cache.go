package upwire

// Cache controls the client-side response cache.
type Cache struct {
	up *Unpoly
}

// Expire tells the client to expire all cached responses whose URL matches
// the pattern (X-Up-Expire-Cache). An empty pattern expires everything.
func (c *Cache) Expire(pattern string) {
	if pattern == "" {
		pattern = "*"
	}
	c.up.Options().ExpireCache = pattern
}

// Keep tells the client to keep its cache. The wire value is the literal
// string "false", which the client reads as "expire nothing"; it is part
// of the protocol contract, not a boolean.
func (c *Cache) Keep() {
	c.up.Options().ExpireCache = "false"
}
