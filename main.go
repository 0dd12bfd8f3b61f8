// Command formation-sync is the catalog sync and notification service.
package main

import "github.com/alpinisme/formation-sync/cmd"

func main() {
	cmd.Execute()
}
