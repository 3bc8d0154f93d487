// See notification.go for the Notification type itself; wakeup_linux.go and
// wakeup_darwin.go provide the platform-specific pipe/eventfd primitives it
// is built on.
package notification
