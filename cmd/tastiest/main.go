// Command tastiest はTastiestのHTTP関数サーバー、フォローアップジョブ、マイグレーションを起動する。
//
//	tastiest [serve|followup|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/tastiest/functions/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
