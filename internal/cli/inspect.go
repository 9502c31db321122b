package cli

import (
	"github.com/spf13/cobra"

	"index-anomaly-alerts/internal/app"
)

var inspectPNGPath string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump current quotes, window state and derived trends without saving",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Inspect(cmd.Context(), app.InspectOptions{PNGPath: inspectPNGPath})
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectPNGPath, "png", "", "Path to write a fluctuation bar chart")
}
