package app

import (
	"context"
	"fmt"
)

// Check runs a single cycle and reports the outcome.
func (a *App) Check(ctx context.Context) error {
	svc, closeStore, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := svc.Check(ctx)
	if err != nil {
		return err
	}
	return a.printResult(res.Skipped, res.Message, res.Notified)
}

func (a *App) printResult(skipped bool, message string, notified bool) error {
	switch {
	case skipped:
		_, err := fmt.Fprintln(a.Out, "⏭️ 另一个检查正在进行，已跳过")
		return err
	case message == "":
		_, err := fmt.Fprintln(a.Out, "✅ 检查完成，无异常")
		return err
	case notified:
		_, err := fmt.Fprintln(a.Out, "✅ 告警已发送")
		return err
	default:
		_, err := fmt.Fprintln(a.Out, message)
		return err
	}
}
