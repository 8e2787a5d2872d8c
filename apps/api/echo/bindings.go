package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/clubhub/core"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=name,-total_credits`; a leading "-" orders descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	if val := ctx.QueryParam(orderingParam); val != "" {
		ord.Orderings = core.ParseOrdering(val)
	}
}
