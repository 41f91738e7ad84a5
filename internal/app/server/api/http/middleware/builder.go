package middleware

import (
	"github.com/danielgtaylor/huma/v2"
)

type Func = func(ctx huma.Context, next func(huma.Context))

// Chain собирает мидлвари для группы операций поверх общего набора.
type Chain struct {
	base  huma.Middlewares
	extra huma.Middlewares
}

// NewChain создает цепочку; base попадает в каждую сборку.
func NewChain(base ...Func) *Chain {
	c := &Chain{base: make(huma.Middlewares, 0, len(base))}
	for _, mw := range base {
		c.base = append(c.base, mw)
	}
	return c
}

// Use добавляет мидлварь только в ближайшую сборку.
func (c *Chain) Use(mw Func) *Chain {
	c.extra = append(c.extra, mw)
	return c
}

// Build возвращает base и накопленные мидлвари и очищает накопленные.
func (c *Chain) Build() huma.Middlewares {
	result := make(huma.Middlewares, 0, len(c.base)+len(c.extra))
	result = append(result, c.base...)
	result = append(result, c.extra...)
	c.extra = nil
	return result
}
