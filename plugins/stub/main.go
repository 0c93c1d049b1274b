// Command stub is a recipe worker whose plugins are YAML files describing
// recipes and how they behave. Tests use it in place of cpl-worker.
package main

import (
	recipeadapter "gocpl/internal/modules/recipe/adapter/out"
	recipegrpc "gocpl/internal/modules/recipe/adapter/out/rpc"
)

func main() {
	recipegrpc.Serve(recipeadapter.NewWorkerServer(fileLoader{}))
}
