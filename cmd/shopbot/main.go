// Shopbot sells products from a Moltin catalog through a Telegram chat.
// Run "shopbot serve" for the bot; "token" and "catalog" check backend access.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
