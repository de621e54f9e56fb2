package billing

import (
	"context"
	"fmt"

	"shortstacks/models"
	"shortstacks/services/notifications"

	"github.com/sirupsen/logrus"
)

// SendDueReminders notifies students who still owe on bills due tomorrow.
// It returns the number of bills that produced a reminder.
func (s *Service) SendDueReminders(ctx context.Context) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}
	today := dateOnly(s.now())
	from := today.AddDate(0, 0, 1)
	to := today.AddDate(0, 0, 2)

	var bills []models.Bill
	if err := s.db.WithContext(ctx).
		Where("due_date >= ? AND due_date < ?", from, to).
		Where("status NOT IN ?", []models.BillStatus{models.BillStatusCancelled, models.BillStatusPaid}).
		Find(&bills).Error; err != nil {
		return 0, fmt.Errorf("load bills due tomorrow: %w", err)
	}

	sent := 0
	for _, bill := range bills {
		var studentIDs []uint
		err := s.db.WithContext(ctx).Model(&models.Enrollment{}).
			Joins("JOIN bill_classes ON bill_classes.class_id = enrollments.class_id").
			Where("bill_classes.bill_id = ?", bill.ID).
			Where("enrollments.student_id NOT IN (?)",
				s.db.Model(&models.StudentBill{}).Select("student_id").Where("bill_id = ? AND is_paid = ?", bill.ID, true)).
			Distinct().
			Pluck("enrollments.student_id", &studentIDs).Error
		if err != nil {
			logrus.WithError(err).WithField("bill_id", bill.ID).Warn("Failed to resolve reminder recipients")
			continue
		}
		if len(studentIDs) == 0 {
			continue
		}
		msg := notifications.Message{
			Title:    "Bill due tomorrow",
			Message:  fmt.Sprintf("%s (%s) is due tomorrow", bill.Title, bill.Amount.StringFixed(2)),
			Type:     notifications.TypeWarning,
			Channels: []string{notifications.ChannelNormal, notifications.ChannelPopup, notifications.ChannelLine},
			Data:     map[string]interface{}{"bill_id": bill.ID},
		}
		if err := s.notifier.Notify(ctx, studentIDs, msg); err != nil {
			logrus.WithError(err).WithField("bill_id", bill.ID).Warn("Failed to send bill reminder")
			continue
		}
		sent++
	}
	return sent, nil
}
