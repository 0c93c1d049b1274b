// Command cpl-worker is the subordinate process gocpl starts for each native
// call in process isolation. It loads CPL plugins in-process and must be
// built with cgo and the cpl tag to do anything useful.
package main

import (
	recipeadapter "gocpl/internal/modules/recipe/adapter/out"
	recipegrpc "gocpl/internal/modules/recipe/adapter/out/rpc"
)

func main() {
	recipegrpc.Serve(recipeadapter.NewWorkerServer(recipeadapter.NewNativeLoader()))
}
