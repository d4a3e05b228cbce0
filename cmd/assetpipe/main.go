// Assetpipe imports source assets incrementally and resolves resources
// from layered providers.
package main

import "github.com/albertocavalcante/assetpipe/cmd/assetpipe/internal/cli"

func main() {
	cli.Execute()
}
