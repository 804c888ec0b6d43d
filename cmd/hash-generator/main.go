// Command hash-generator produces bcrypt hashes of raw API keys for
// the keyset file consumed by the server's auth layer.
//
// Usage:
//
//	hash-generator <raw-key> [<raw-key>...]
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: hash-generator <raw-key> [<raw-key>...]")
		os.Exit(1)
	}

	for _, key := range os.Args[1:] {
		hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error generating hash: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s\n", string(hash))
	}
}
