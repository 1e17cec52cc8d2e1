package h3mapper

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// parentOf keeps the zero bucket and invalid cells where they are.
func parentOf(c h3.Cell, parentRes int) h3.Cell {
	if c == 0 || !c.IsValid() || c.Resolution() <= parentRes {
		return c
	}
	p, err := c.Parent(parentRes)
	if err != nil {
		return c
	}
	return p
}
