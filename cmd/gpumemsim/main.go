// gpumemsim replays an accel-sim style kernel trace through a timing model
// of a GPU memory subsystem and reports cache, interconnect, and DRAM
// behavior.
package main

import (
	"github.com/joho/godotenv"
	"github.com/tebeka/atexit"
)

func main() {
	// A .env file can override the environment knobs, such as CYCLES and
	// SILENT.
	_ = godotenv.Load()

	Execute()
	atexit.Exit(0)
}
