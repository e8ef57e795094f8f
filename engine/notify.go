/*
notify.go - Default payroll notification

The engine only hands a finalized result off; transport lives behind the
Notifier interface (stores.go). LogNotifier is the default: it records the
handoff so a send is always visible in the log even with no mail transport
configured.
*/
package engine

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier records payroll handoffs in the application log.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (n *LogNotifier) PayrollSent(_ context.Context, userID UserID, result *PayrollResult) error {
	logger := n.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"user_id":        userID,
		"payroll_number": result.PayrollNumber,
		"net_payment":    result.Totals.NetPayment.String(),
	}).Info("payroll sent")
	return nil
}
