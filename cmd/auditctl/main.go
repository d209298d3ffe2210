// Command auditctl is an operator tool for the audit service: it previews how
// a document change would be classified, lists the audited collections and
// mints push tokens.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
