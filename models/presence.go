package models

import "time"

// PresenceRecord is the authoritative per-user presence state. The
// presence store owns every mutable field; callers only ever receive
// copies.
type PresenceRecord struct {
	Username      string    `json:"username"`
	Online        bool      `json:"online"`
	Busy          bool      `json:"busy"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
	Message  string `json:"message"`
}

// StatusUpdateRequest carries the busy flag as a pointer so that an
// explicit false still binds.
type StatusUpdateRequest struct {
	Busy *bool `json:"busy" binding:"required"`
}

type StatusResponse struct {
	Username      string    `json:"username"`
	Online        bool      `json:"online"`
	Busy          bool      `json:"busy"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	IsOnline      bool      `json:"is_online"`
}

type AvailableUsersResponse struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}
