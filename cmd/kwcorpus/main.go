// Command kwcorpus maintains the keyword corpus of the mail classifier.
//
// It learns new keywords and phrases per category from labelled sample
// messages and either reports them (analyze) or appends them to the corpus
// store after a verified backup (merge).
package main

import (
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
