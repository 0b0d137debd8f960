package application_test

import (
	"context"

	"github.com/ledgerdesk/ledgerdesk/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// **** LedgerSession ****

type mockSession struct {
	mock.Mock
	events chan ports.SessionEvent
}

func newMockSession() *mockSession {
	return &mockSession{events: make(chan ports.SessionEvent, 16)}
}

func (m *mockSession) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockSession) Events() <-chan ports.SessionEvent {
	return m.events
}

func (m *mockSession) Submit(ctx context.Context, blobHex string) (uint64, error) {
	args := m.Called(ctx, blobHex)

	var res uint64
	if a := args.Get(0); a != nil {
		res = a.(uint64)
	}
	return res, args.Error(1)
}

func (m *mockSession) Refresh(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockSession) State() ports.SessionState {
	args := m.Called()
	return args.Get(0).(ports.SessionState)
}

func (m *mockSession) Pending() int {
	args := m.Called()
	return args.Int(0)
}

func (m *mockSession) Close() {
	m.Called()
}
