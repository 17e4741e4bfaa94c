// Command rhymeslikedimes finds perfect, near and slant rhymes for every
// word and short phrase of a lyric line.
//
// Usage:
//
//	rhymeslikedimes serve --config configs/rhymes.example.yaml
//	rhymeslikedimes analyze "cookie tear"
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
