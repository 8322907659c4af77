// Command donations-admin manages the donation state from a terminal:
// backups, spreadsheet transfers, exchange rates and summaries. Changes are
// announced on the configured bus so running servers pick them up.
package main

import (
	"context"
	"os"

	"github.com/pterm/pterm"

	"donations/internal/cli"
)

func main() {
	pterm.Error.Prefix = pterm.Prefix{
		Text:  " خطأ ",
		Style: pterm.NewStyle(pterm.BgLightRed, pterm.FgBlack),
	}
	ctx, stop := cli.SignalContext(context.Background())
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
