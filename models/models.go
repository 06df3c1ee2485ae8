package models

// User is an account row. User ids are stable and monotonic; they are never
// re-numbered even if the email changes.
type User struct {
	UserID       int64
	Email        string
	DisplayName  string
	PasswordHash string
	Created      int64
}

// Canvas is a shared drawing surface. Moderated is toggled live and mirrored
// in memory by the canvas hub.
type Canvas struct {
	CanvasID      string
	Name          string
	OwnerUserID   int64
	Moderated     bool
	EventFilePath string
	Created       int64
}

// CanvasMember is one permission grant on a canvas, with the member's display
// name for the permissions listing endpoint.
type CanvasMember struct {
	UserID      int64           `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Level       PermissionLevel `json:"-"`
}

// CanvasListItem is a canvas visible to a user together with their level.
type CanvasListItem struct {
	CanvasID        string          `json:"canvas_id"`
	Name            string          `json:"name"`
	PermissionLevel PermissionLevel `json:"permission_level"`
}
