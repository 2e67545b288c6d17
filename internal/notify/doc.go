// Package notify delivers reminder and assignment alerts to the configured
// chat channel.
//
// Notify is synchronous: a nil error means the platform accepted the message.
// Callers rely on that to decide whether a threshold counts as fired.
package notify
