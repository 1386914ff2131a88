package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/devicehub/devicehub/pkg/logger"
)

func main() {
	outDir := flag.String("out", "./schemas", "output directory for generated schemas")
	flag.Parse()

	absOutDir, err := filepath.Abs(*outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error converting path to absolute: %v\n", err)
		os.Exit(1)
	}
	ctx := logger.ContextWithLogger(context.Background(), logger.NewLogger(logger.DefaultConfig()))
	if err := NewSchemaGenerator(afero.NewOsFs()).Generate(ctx, absOutDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}
}
