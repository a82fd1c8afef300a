package service

import (
	"context"
	"time"

	"blerelay"
	"blerelay/internal/ble"
	"blerelay/internal/device"
	"blerelay/internal/diag"
	"blerelay/internal/logger"
	"blerelay/internal/protocol"
	"blerelay/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Session owns the device link lifecycle and is the only command path to the
// appliance. Connect is asynchronous and may suspend waiting on device
// selection; Disconnect is synchronous-effective and idempotent.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect()
	Send(ctx context.Context, cmd blerelay.Command) error
	State() blerelay.ConnState
}

// Monitoring exposes read-only link and appliance status.
type Monitoring interface {
	Status() Status
	Recent() []diag.Entry
}

// EventLog exposes the durable journal with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]blerelay.SessionEvent, error)
}

// Status is one coherent read of everything an operator display needs.
// Countdown is derived fresh on every call, never cached.
type Status struct {
	ConnState blerelay.ConnState       `json:"conn_state"`
	Snapshot  blerelay.DeviceSnapshot  `json:"snapshot"`
	Countdown string                   `json:"countdown"`
}

// LogFilter narrows journal queries by time range and event type.
type LogFilter struct {
	From time.Time
	To   time.Time
	Type string
}

// Service aggregates all sub-services.
type Service struct {
	Session
	Monitoring
	EventLog
	Authorization
}

// Deps carries the link-layer collaborators the services are built around.
type Deps struct {
	Provider   ble.Provider
	Codec      protocol.Codec
	Store      *device.Store
	Ring       *diag.Ring
	Log        *logger.Logger
	SigningKey string
}

func NewService(repos *repository.Repository, d Deps) *Service {
	sess := NewSessionService(d.Provider, d.Codec, d.Store, d.Ring, repos.EventRepo, d.Log)
	return &Service{
		Session:       sess,
		Monitoring:    NewMonitoringService(d.Store, d.Ring, sess),
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, d.SigningKey),
	}
}
