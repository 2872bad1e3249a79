package example

import "sync"

const (
	// Contexts that grew past this many examples are dropped instead of pooled
	poolMaxExamples  = 1024
	poolInitExamples = 16
)

var contextPool = sync.Pool{
	New: func() any {
		return &Context{examples: make([]Example, 0, poolInitExamples)}
	},
}

// Acquire returns an empty context from the pool.
func Acquire() *Context {
	return contextPool.Get().(*Context)
}

// Release resets c and returns it to the pool.
func Release(c *Context) {
	if c == nil || cap(c.examples) > poolMaxExamples {
		return // reject oversized
	}
	c.Reset()
	contextPool.Put(c)
}
