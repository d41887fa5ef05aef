package a2a

// PushNotificationConfig is a webhook registration scoped to one task.
// It is created and deleted independently of the task lifecycle but
// logically expires when the task completes.
type PushNotificationConfig struct {
	// ID distinguishes multiple configs on one task. Server-generated when
	// absent.
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
	// Token is an opaque client correlation token echoed on every delivery.
	Token          string                              `json:"token,omitempty"`
	Authentication *PushNotificationAuthenticationInfo `json:"authentication,omitempty"`
}

// PushNotificationAuthenticationInfo carries credentials the server should
// present to the webhook endpoint.
type PushNotificationAuthenticationInfo struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"`
}

// TaskPushNotificationConfig associates a push config with a task.
type TaskPushNotificationConfig struct {
	TaskID string                 `json:"taskId"`
	Config PushNotificationConfig `json:"pushNotificationConfig"`
}

// Clone returns a deep copy of the config.
func (c PushNotificationConfig) Clone() PushNotificationConfig {
	out := c
	if c.Authentication != nil {
		auth := *c.Authentication
		if c.Authentication.Schemes != nil {
			auth.Schemes = append([]string(nil), c.Authentication.Schemes...)
		}
		out.Authentication = &auth
	}
	return out
}
