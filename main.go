package main

import "raicompanion/internal/app"

func main() {
	app.Main()
}
