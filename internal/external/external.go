// Package external holds development implementations of the outbound
// collaborator contracts. Each one logs the call and succeeds, so the
// pipeline can run end to end without the real sheet, mail, chat or
// printer credentials. Production deployments swap these for real
// transports behind the same interfaces.
package external

import (
	"context"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// LogSheetSync pretends to append rows to the ops spreadsheet.
type LogSheetSync struct {
	logger *zap.Logger
}

func NewLogSheetSync() *LogSheetSync {
	return &LogSheetSync{logger: util.NamedLogger("sheets")}
}

func (s *LogSheetSync) AppendOrder(ctx context.Context, order *models.Order) error {
	s.logger.Info("sheet append",
		zap.Int64("order_id", order.ID),
		zap.String("status", order.Status),
		zap.Int64("total", order.Total))
	return nil
}

func (s *LogSheetSync) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	s.logger.Info("sheet status update",
		zap.Int64("order_id", orderID),
		zap.String("status", status))
	return nil
}

// LogEmailSender logs outbound mail instead of delivering it.
type LogEmailSender struct {
	logger *zap.Logger
}

func NewLogEmailSender() *LogEmailSender {
	return &LogEmailSender{logger: util.NamedLogger("email")}
}

func (s *LogEmailSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Info("email send",
		zap.String("to", to),
		zap.String("subject", subject))
	return nil
}

// SendCode satisfies the guest verification sender with the same logging
// transport. The code appears in the log so manual testing can complete
// the flow.
func (s *LogEmailSender) SendCode(ctx context.Context, channel, target, code string) error {
	s.logger.Info("verification code send",
		zap.String("channel", channel),
		zap.String("target", target),
		zap.String("code", code))
	return nil
}

// LogChatSender logs chat pushes.
type LogChatSender struct {
	logger *zap.Logger
}

func NewLogChatSender() *LogChatSender {
	return &LogChatSender{logger: util.NamedLogger("chat")}
}

func (s *LogChatSender) Push(ctx context.Context, to, body string) error {
	s.logger.Info("chat push", zap.String("to", to))
	return nil
}

// LogReceiptPrinter logs print dispatches.
type LogReceiptPrinter struct {
	logger *zap.Logger
}

func NewLogReceiptPrinter() *LogReceiptPrinter {
	return &LogReceiptPrinter{logger: util.NamedLogger("printer")}
}

func (p *LogReceiptPrinter) PrintReceipt(ctx context.Context, orderID int64) error {
	p.logger.Info("receipt print", zap.Int64("order_id", orderID))
	return nil
}
