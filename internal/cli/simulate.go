package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"index-anomaly-alerts/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一个15分钟窗口并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.Start <= 0 || simulateOpts.Price <= 0 {
			return errors.New("--start 与 --price 必须大于 0")
		}
		opts := simulateOpts
		if opts.High == 0 {
			opts.High = opts.Start
		}
		if opts.Low == 0 {
			opts.Low = opts.Start
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.Code, "code", "sh000001", "指数代码")
	simulateCmd.Flags().Float64Var(&simulateOpts.Start, "start", 0, "窗口起始价")
	simulateCmd.Flags().Float64Var(&simulateOpts.High, "high", 0, "窗口最高价 (默认等于起始价)")
	simulateCmd.Flags().Float64Var(&simulateOpts.Low, "low", 0, "窗口最低价 (默认等于起始价)")
	simulateCmd.Flags().Float64Var(&simulateOpts.Price, "price", 0, "当前价格")
	simulateCmd.Flags().Float64Var(&simulateOpts.ChangePct, "change-pct", 0, "当日涨跌幅 (%)")
}
