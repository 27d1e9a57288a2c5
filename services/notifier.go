package services

import (
	"github.com/sirupsen/logrus"
)

// LogNotifier writes notifications to the structured log. It stands in for a
// real delivery channel (webhook, email) in local and test deployments.
type LogNotifier struct {
	log *logrus.Entry
}

// NewLogNotifier builds a notifier logging under the given component name.
func NewLogNotifier(component string) *LogNotifier {
	if component == "" {
		component = "notifier"
	}
	return &LogNotifier{log: logrus.WithField("component", component)}
}

// Notify implements marketplace.Notifier.
func (n *LogNotifier) Notify(recipient, kind, title, message, link string) {
	n.log.WithFields(logrus.Fields{
		"recipient": recipient,
		"kind":      kind,
		"title":     title,
		"link":      link,
	}).Info(message)
}
