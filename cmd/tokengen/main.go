// Command tokengen prints an access token for a sync client, signed with
// the server's secret key.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/offsync/internal/server/auth"
)

func main() {
	clientID := flag.String("id", "", "client id to put in the token")
	secret := flag.String("s", "secretKey", "server secret key")
	validity := flag.Duration("t", 24*time.Hour, "token validity")
	flag.Parse()

	if *clientID == "" {
		fmt.Fprintln(os.Stderr, "tokengen: -id is required")
		os.Exit(2)
	}

	token, err := auth.GenerateToken(*clientID, []byte(*secret), *validity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
