package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"donations/internal/backup"
	"donations/internal/core"
	"donations/internal/sheets"
	"donations/internal/sheets/google"
	"donations/internal/sheets/xlsx"
)

func newBackupCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a JSON backup of donations and rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := e.rt.App.Backup()
			if out == "" {
				out = backup.FileName(doc.BackupDate)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := backup.Encode(f, doc); err != nil {
				return err
			}
			pterm.Success.Printfln("Backed up %d donations to %s", len(doc.Donations), out)
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default donations_backup_<date>.json)")
	return cmd
}

func newRestoreCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore FILE",
		Short: "Replace every donation and rate with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			doc, err := backup.Decode(f)
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("%w: pass --yes to replace %d donations with %d from the backup",
					core.ErrNotConfirmed, len(e.rt.App.Donations.All()), len(doc.Donations))
			}
			if err := e.rt.App.Restore(cmd.Context(), doc, true); err != nil {
				return err
			}
			pterm.Success.Printfln("Restored %d donations", len(doc.Donations))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm replacing the current data")
	return cmd
}

func newImportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.xlsx",
		Short: "Import donations from a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rows, err := xlsx.Read(f)
			if err != nil {
				return err
			}
			n, err := e.rt.App.ImportRows(cmd.Context(), rows)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Imported %d donations", n)
			return nil
		},
	}
}

func newExportCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export donations to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			grid := e.rt.App.ExportGrid()
			if len(grid) <= 1 {
				pterm.Warning.Println("No donations to export")
				return nil
			}
			if out == "" {
				out = sheets.ExportFileName(e.rt.App.Now())
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := xlsx.Write(f, grid); err != nil {
				return err
			}
			pterm.Success.Printfln("Exported %d donations to %s", len(grid)-1, out)
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	return cmd
}

// sheetsClient connects to the configured spreadsheet.
func sheetsClient(cmd *cobra.Command, e *env) (*google.Client, error) {
	if !e.cfg.SheetsConfigured() {
		return nil, fmt.Errorf("google sheets is not configured: set GOOGLE_SPREADSHEET_ID and service account credentials")
	}
	return google.New(cmd.Context(), google.Options{
		SpreadsheetID:   e.cfg.GoogleSpreadsheetID,
		SheetName:       e.cfg.GoogleSheetName,
		CredentialsJSON: e.cfg.GoogleServiceAccountJSON,
		CredentialsFile: e.cfg.GoogleServiceAccountFile,
	})
}

func newSheetsImportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sheets-import",
		Short: "Import the rows of the configured Google sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := sheetsClient(cmd, e)
			if err != nil {
				return err
			}
			rows, err := c.ReadRows(cmd.Context())
			if err != nil {
				return err
			}
			n, err := e.rt.App.ImportRows(cmd.Context(), rows)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Imported %d donations from Google Sheets", n)
			return nil
		},
	}
}

func newSheetsExportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sheets-export",
		Short: "Overwrite the configured Google sheet with every donation",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := sheetsClient(cmd, e)
			if err != nil {
				return err
			}
			grid := e.rt.App.ExportGrid()
			if err := c.WriteRows(cmd.Context(), grid); err != nil {
				return err
			}
			pterm.Success.Printfln("Wrote %d donations to Google Sheets", len(grid)-1)
			return nil
		},
	}
}
