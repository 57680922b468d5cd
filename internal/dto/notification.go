package dto

// NotificationQuery mirrors notification listing filters.
type NotificationQuery struct {
	Page int
}
