package enums

// NotificationAudience says who a recorded notification was addressed to.
type NotificationAudience string

const (
	NotificationAudienceContact NotificationAudience = "contact"
	NotificationAudienceAdmin   NotificationAudience = "admin"
)

// String implements fmt.Stringer.
func (n NotificationAudience) String() string {
	return string(n)
}
