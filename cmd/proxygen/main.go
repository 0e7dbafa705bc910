package main

import (
	// Register Plugins via side-effects
	_ "proxygen/internal/collectors/file"
	_ "proxygen/internal/collectors/http"
	_ "proxygen/internal/publishers/file"
	_ "proxygen/internal/publishers/github"
	_ "proxygen/internal/publishers/stdout"
)

func main() {
	Execute()
}
