// Command gen-corpus converts a YAML rule bundle into a Loam repository of
// markdown documents, one per rule.
//
//	gen-corpus examples/corpus.yaml examples/corpus
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/loam"
	loamAdapter "github.com/aretw0/strata/pkg/adapters/loam"
	"github.com/aretw0/strata/pkg/adapters/yamlfile"
)

func main() {
	source, targetDir := "examples/corpus.yaml", "examples/corpus"
	if len(os.Args) > 1 {
		source = os.Args[1]
	}
	if len(os.Args) > 2 {
		targetDir = os.Args[2]
	}

	f, err := os.Open(source)
	check(err)
	defer f.Close()
	bundle, err := yamlfile.Decode(f)
	check(err)
	defs, err := bundle.Definitions()
	check(err)

	check(os.MkdirAll(targetDir, 0o755))
	fmt.Printf("Generating corpus in: %s\n", targetDir)

	// No versioning: plain file generation.
	repo, err := loam.Init(targetDir, loam.WithVersioning(false))
	check(err)

	ctx := context.Background()
	n, err := loamAdapter.Export(ctx, loam.NewTypedRepository[loamAdapter.RuleMetadata](repo), defs)
	check(err)

	// Reading back catches dangling uses before anyone serves the corpus.
	_, err = loamAdapter.Open(ctx, targetDir)
	check(err)

	fmt.Printf("Done. %d rules written to %s\n", n, targetDir)
}

func check(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "gen-corpus:", err)
		os.Exit(1)
	}
}
